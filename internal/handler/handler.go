package handler

import (
	"strconv"
	"time"

	"bookstore/internal/apperrors"
	"bookstore/internal/auth"
	"bookstore/internal/config"
	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/service"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	bookService      *service.BookService
	purchaseService  *service.PurchaseService
	saleService      *service.SaleService
	financialService *service.FinancialService
	userService      *service.UserService
	dashboardService *service.DashboardService
	outboxService    *service.OutboxService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, locker lock.Locker, tokens *auth.TokenManager, cfg *config.Config) *Handler {
	return &Handler{
		bookService:      service.NewBookService(db, locker, cfg),
		purchaseService:  service.NewPurchaseService(db, locker, cfg),
		saleService:      service.NewSaleService(db, locker, cfg),
		financialService: service.NewFinancialService(db, cfg),
		userService:      service.NewUserService(db, tokens, cfg),
		dashboardService: service.NewDashboardService(db, cfg),
		outboxService:    service.NewOutboxService(db),
	}
}

// bindJSON 解析失败时直接写出 400
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		response.ParamError(c, "请求体格式错误: "+err.Error())
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.FromError(c, apperrors.NewValidationError("id", "必须是正整数"))
		return 0, false
	}
	return id, true
}

// queryParams 收集查询参数解析错误，最后一次性返回
type queryParams struct {
	c    *gin.Context
	verr *apperrors.ValidationError
}

func newQueryParams(c *gin.Context) *queryParams {
	return &queryParams{c: c, verr: &apperrors.ValidationError{}}
}

func (q *queryParams) intValue(name string, def int) int {
	raw := q.c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.verr.Add(name, "必须是整数")
		return def
	}
	return v
}

func (q *queryParams) intPtr(name string) *int {
	raw := q.c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.verr.Add(name, "必须是整数")
		return nil
	}
	return &v
}

func (q *queryParams) int64Value(name string) int64 {
	raw := q.c.Query(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		q.verr.Add(name, "必须是非负整数")
		return 0
	}
	return v
}

func (q *queryParams) decimalPtr(name string) *decimal.Decimal {
	raw := q.c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		q.verr.Add(name, "必须是数字")
		return nil
	}
	return &v
}

// page 支持 per_page 和 page_size 两种写法
func (q *queryParams) page() (int, int) {
	page := q.intValue("page", 1)
	perPage := q.intValue("per_page", 0)
	if perPage == 0 {
		perPage = q.intValue("page_size", 0)
	}
	return page, perPage
}

// ok 有解析错误时写出 400 并返回 false
func (q *queryParams) ok() bool {
	if q.verr.HasErrors() {
		response.FromError(q.c, q.verr)
		return false
	}
	return true
}

// dateRange start_date / end_date，格式 YYYY-MM-DD
func dateRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	start, end, err := service.ParseDateRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.FromError(c, err)
		return nil, nil, false
	}
	return start, end, true
}
