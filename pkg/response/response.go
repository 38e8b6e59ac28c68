package response

import (
	"errors"
	"log/slog"
	"net/http"

	"bookstore/internal/apperrors"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess           = 0
	CodeParamError        = 400
	CodeUnauthorized      = 401
	CodeForbidden         = 403
	CodeNotFound          = 404
	CodeConflict          = 409
	CodeServerError       = 500
	CodeInvalidState      = 1001
	CodeInsufficientStock = 1002
)

type Response struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    interface{}            `json:"data,omitempty"`
	Errors  []apperrors.FieldError `json:"errors,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodeForbidden, message)
}

func ServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeServerError, "服务器内部错误")
}

// FromError 按错误分类返回对应的 HTTP 状态码，未分类的错误只记日志不暴露细节
func FromError(c *gin.Context, err error) {
	var verr *apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{
			Code:    CodeParamError,
			Message: apperrors.ErrValidation.Error(),
			Errors:  verr.Fields,
		})
	case errors.Is(err, apperrors.ErrValidation):
		Error(c, http.StatusBadRequest, CodeParamError, err.Error())
	case errors.Is(err, apperrors.ErrInsufficientStock):
		Error(c, http.StatusBadRequest, CodeInsufficientStock, err.Error())
	case errors.Is(err, apperrors.ErrInvalidState):
		Error(c, http.StatusBadRequest, CodeInvalidState, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		Error(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		Error(c, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, apperrors.ErrUnauthorized):
		Unauthorized(c, err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		Forbidden(c, err.Error())
	default:
		slog.ErrorContext(c.Request.Context(), "请求处理失败",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		ServerError(c)
	}
}
