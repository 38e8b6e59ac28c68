package handler

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"bookstore/internal/apperrors"
	"bookstore/internal/auth"
	"bookstore/internal/logging"
	"bookstore/internal/model"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
)

const (
	claimsKey       = "claims"
	requestIDHeader = "X-Request-ID"
)

// RequestLogger 分配请求 ID 并记录请求结果
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		} else if status >= http.StatusBadRequest {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "请求完成",
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("query", c.Request.URL.RawQuery),
			slog.String("client_ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

// RecoveryMiddleware 防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				slog.ErrorContext(c.Request.Context(), "panic", "error", err, "stack", string(debug.Stack()))
				response.ServerError(c)
			}
		}()
		c.Next()
	}
}

// AuthRequired 校验 Bearer 令牌，把 Claims 放进上下文
func AuthRequired(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			response.Unauthorized(c, "缺少或格式错误的 Authorization 头")
			return
		}

		claims, err := tokens.Parse(parts[1])
		if err != nil {
			response.FromError(c, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(logging.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

// RequireRole 必须放在 AuthRequired 之后
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := currentClaims(c)
		if claims == nil {
			response.FromError(c, apperrors.ErrUnauthorized)
			return
		}
		if !model.RoleSatisfies(claims.Role, role) {
			response.FromError(c, apperrors.ErrForbidden)
			return
		}
		c.Next()
	}
}

// RateLimit 按客户端 IP 限流
func RateLimit(l *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := l.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "限流检查失败", "error", err)
			response.ServerError(c)
			return
		}
		if ctx.Reached {
			slog.WarnContext(c.Request.Context(), "请求过于频繁", "client_ip", c.ClientIP(), "limit", ctx.Limit)
			response.Error(c, http.StatusTooManyRequests, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			return
		}
		c.Next()
	}
}

func currentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// operatorID 当前登录用户 ID
func operatorID(c *gin.Context) int64 {
	if claims := currentClaims(c); claims != nil {
		return claims.UserID
	}
	return 0
}
