package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bookstore/internal/auth"
	"bookstore/internal/config"
	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/model"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, locker lock.Locker, cfg *config.Config, logger *slog.Logger) (*gin.Engine, error) {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	loginRate, err := limiter.NewRateFromFormatted(cfg.Auth.LoginRate)
	if err != nil {
		return nil, fmt.Errorf("auth.login_rate 格式错误: %w", err)
	}
	loginLimiter := limiter.New(memory.NewStore(), loginRate)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)
	h := NewHandler(db, locker, tokens, cfg)

	admin := RequireRole(model.RoleAdmin)
	superAdmin := RequireRole(model.RoleSuperAdmin)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", RateLimit(loginLimiter), h.Login)

		authed := api.Group("", AuthRequired(tokens))

		// 个人信息
		authed.GET("/auth/profile", h.Profile)
		authed.POST("/auth/change-password", h.ChangePassword)

		// 用户管理
		users := authed.Group("/users")
		{
			users.GET("", admin, h.ListUsers)
			users.GET("/:id", admin, h.GetUser)
			users.POST("", superAdmin, h.CreateUser)
			users.PUT("/:id", superAdmin, h.UpdateUser)
			users.DELETE("/:id", superAdmin, h.DeleteUser)
		}

		// 图书
		books := authed.Group("/books")
		{
			books.GET("", h.ListBooks)
			books.GET("/low-stock", h.LowStockBooks)
			books.GET("/:id", h.GetBook)
			books.GET("/:id/stock-logs", h.StockLogs)
			books.POST("", admin, h.CreateBook)
			books.PUT("/:id", admin, h.UpdateBook)
			books.DELETE("/:id", admin, h.DeleteBook)
			books.POST("/:id/stock", admin, h.AdjustStock)
		}

		// 进货
		purchases := authed.Group("/purchases", admin)
		{
			purchases.GET("", h.ListPurchases)
			purchases.POST("", h.CreatePurchase)
			purchases.GET("/:id", h.GetPurchase)
			purchases.POST("/:id/pay", h.PayPurchase)
			purchases.POST("/:id/return", h.ReturnPurchase)
			purchases.POST("/:id/cancel", h.CancelPurchase)
			purchases.PUT("/:id/remark", h.UpdatePurchaseRemark)
		}

		// 销售，所有登录用户都可以操作
		sales := authed.Group("/sales")
		{
			sales.GET("", h.ListSales)
			sales.POST("", h.CreateSale)
			sales.GET("/stats", h.SaleStats)
			sales.GET("/:id", h.GetSale)
			sales.PUT("/:id/remark", h.UpdateSaleRemark)
		}

		// 财务
		financial := authed.Group("/financial", admin)
		{
			financial.GET("/records", h.ListFinancialRecords)
			financial.GET("/records/export", h.ExportFinancialRecords)
			financial.GET("/records/:id", h.GetFinancialRecord)
			financial.POST("/records", superAdmin, h.CreateFinancialRecord)
			financial.PUT("/records/:id", h.UpdateFinancialRecord)
			financial.GET("/summary", h.FinancialSummary)
			financial.GET("/daily-summary", h.DailySummaries)
			financial.POST("/generate-daily-summary", h.GenerateDailySummary)
			financial.POST("/generate-period-summary", h.GeneratePeriodSummary)
			financial.GET("/summary-trends", h.SummaryTrends)
		}

		// 投递失败的业务事件
		outbox := authed.Group("/outbox", superAdmin)
		{
			outbox.GET("/stats", h.OutboxStats)
			outbox.GET("/failed", h.FailedEvents)
			outbox.POST("/requeue", h.RequeueEvents)
		}

		dashboard := authed.Group("/dashboard")
		{
			dashboard.GET("/overview", h.DashboardOverview)
			dashboard.GET("/sales-ranking", h.SalesRanking)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r, nil
}
