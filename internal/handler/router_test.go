package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bookstore/internal/auth"
	"bookstore/internal/config"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/model"
	"bookstore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

type routerSuite struct {
	suite.Suite

	db     *gorm.DB
	cfg    *config.Config
	router *gin.Engine

	superToken string
	adminToken string
	clerkToken string
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(routerSuite))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode, CORSOrigins: []string{"http://localhost:5173"}},
		Auth: config.AuthConfig{
			JWTSecret: "handler-secret",
			JWTIssuer: "bookstore",
			TokenTTL:  time.Hour,
			LoginRate: "1000-M",
		},
		Business: config.BusinessConfig{
			RetailMarkup:      "1.3",
			LowStockThreshold: 10,
			MaxTrendDays:      365,
		},
	}
}

func (s *routerSuite) SetupTest() {
	name := strings.NewReplacer("/", "_").Replace(s.T().Name())
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	s.Require().NoError(err)
	s.db = db
	s.cfg = testConfig()

	s.router, err = SetupRouter(db, lock.NoopLocker{}, s.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)

	users := service.NewUserService(db, auth.NewTokenManager(s.cfg.Auth.JWTSecret, s.cfg.Auth.JWTIssuer, time.Hour), s.cfg)
	for _, u := range []struct{ name, role string }{
		{"root", model.RoleSuperAdmin},
		{"manager", model.RoleAdmin},
		{"clerk", model.RoleNone},
	} {
		_, err := users.Create(context.Background(), &service.CreateUserRequest{Username: u.name, Password: "pass1234", Role: u.role})
		s.Require().NoError(err)
	}

	s.superToken = s.login("root", "pass1234")
	s.adminToken = s.login("manager", "pass1234")
	s.clerkToken = s.login("clerk", "pass1234")
}

func (s *routerSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *routerSuite) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *routerSuite) decode(env envelope, v interface{}) {
	s.Require().NoError(json.Unmarshal(env.Data, v), string(env.Data))
}

func (s *routerSuite) login(username, password string) string {
	w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": password})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Token string `json:"token"`
	}
	s.decode(env, &data)
	return data.Token
}

func (s *routerSuite) TestHealth() {
	w, _ := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get(requestIDHeader))
}

func (s *routerSuite) TestLogin() {
	w, env := s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "clerk", "password": "pass1234"})
	s.Require().Equal(http.StatusOK, w.Code)
	var data struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
		User      struct {
			Username string `json:"username"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	s.decode(env, &data)
	s.NotEmpty(data.Token)
	s.Equal("Bearer", data.TokenType)
	s.Equal("clerk", data.User.Username)
	s.Equal(model.RoleNone, data.User.Role)
	s.NotContains(string(env.Data), "password")

	w, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "clerk", "password": "wrong"})
	s.Equal(http.StatusUnauthorized, w.Code)

	w, env = s.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "clerk"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.NotEmpty(env.Errors)
}

func (s *routerSuite) TestLoginRateLimit() {
	s.cfg.Auth.LoginRate = "2-M"
	router, err := SetupRouter(s.db, lock.NoopLocker{}, s.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"clerk","password":"wrong"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	s.Equal([]int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func (s *routerSuite) TestAuthentication() {
	w, _ := s.do(http.MethodGet, "/api/v1/books", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w, _ = s.do(http.MethodGet, "/api/v1/books", "not-a-token", nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	other := auth.NewTokenManager("other-secret", "bookstore", time.Hour)
	forged, err := other.Generate(1, "root", model.RoleSuperAdmin)
	s.Require().NoError(err)
	w, _ = s.do(http.MethodGet, "/api/v1/books", forged, nil)
	s.Equal(http.StatusUnauthorized, w.Code)

	w, env := s.do(http.MethodGet, "/api/v1/auth/profile", s.clerkToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(string(env.Data), `"username":"clerk"`)
}

func (s *routerSuite) TestRoleChecks() {
	book := gin.H{"isbn": "111", "title": "X", "retail_price": "15.00", "stock": 3}

	w, _ := s.do(http.MethodPost, "/api/v1/books", s.clerkToken, book)
	s.Equal(http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodGet, "/api/v1/books", s.clerkToken, nil)
	s.Equal(http.StatusOK, w.Code)
	w, _ = s.do(http.MethodGet, "/api/v1/purchases", s.clerkToken, nil)
	s.Equal(http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodGet, "/api/v1/financial/summary", s.clerkToken, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/books", s.adminToken, book)
	s.Equal(http.StatusCreated, w.Code)
	w, _ = s.do(http.MethodGet, "/api/v1/purchases", s.adminToken, nil)
	s.Equal(http.StatusOK, w.Code)

	// 用户管理：管理员只能查看，超级管理员可以新增
	newUser := gin.H{"username": "clerk2", "password": "pass1234"}
	w, _ = s.do(http.MethodGet, "/api/v1/users", s.adminToken, nil)
	s.Equal(http.StatusOK, w.Code)
	w, _ = s.do(http.MethodPost, "/api/v1/users", s.adminToken, newUser)
	s.Equal(http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodPost, "/api/v1/users", s.superToken, newUser)
	s.Equal(http.StatusCreated, w.Code)
	w, _ = s.do(http.MethodPost, "/api/v1/users", s.superToken, newUser)
	s.Equal(http.StatusConflict, w.Code)

	w, _ = s.do(http.MethodPost, "/api/v1/financial/records", s.adminToken, gin.H{"type": "INCOME", "amount": "10"})
	s.Equal(http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodPost, "/api/v1/financial/records", s.superToken, gin.H{"type": "INCOME", "amount": "10", "description": "杂项"})
	s.Equal(http.StatusCreated, w.Code)
}

func (s *routerSuite) TestPurchaseFlow() {
	w, env := s.do(http.MethodPost, "/api/v1/purchases", s.adminToken, gin.H{
		"remark": "首批",
		"items": []gin.H{
			{"isbn": "111", "title": "X", "quantity": 5, "purchase_price": "10.00"},
		},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var order struct {
		ID          int64   `json:"id"`
		Status      string  `json:"status"`
		TotalAmount float64 `json:"total_amount"`
		Details     []struct {
			BookID    *int64 `json:"book_id"`
			IsNewBook bool   `json:"is_new_book"`
		} `json:"details"`
	}
	s.decode(env, &order)
	s.Equal(model.PurchaseStatusUnpaid, order.Status)
	s.Equal(50.0, order.TotalAmount)
	s.Require().Len(order.Details, 1)
	s.True(order.Details[0].IsNewBook)
	s.Nil(order.Details[0].BookID)

	path := fmt.Sprintf("/api/v1/purchases/%d", order.ID)
	w, env = s.do(http.MethodPost, path+"/pay", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &order)
	s.Equal(model.PurchaseStatusPaid, order.Status)
	s.Require().NotNil(order.Details[0].BookID)
	bookPath := fmt.Sprintf("/api/v1/books/%d", *order.Details[0].BookID)

	var book struct {
		Stock       int     `json:"stock"`
		RetailPrice float64 `json:"retail_price"`
	}
	w, env = s.do(http.MethodGet, bookPath, s.clerkToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(env, &book)
	s.Equal(5, book.Stock)
	s.Equal(13.0, book.RetailPrice)

	w, env = s.do(http.MethodPost, path+"/pay", s.adminToken, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.NotZero(env.Code)

	w, env = s.do(http.MethodPost, path+"/return", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &order)
	s.Equal(model.PurchaseStatusReturned, order.Status)

	w, env = s.do(http.MethodGet, bookPath, s.clerkToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(env, &book)
	s.Equal(0, book.Stock)

	var summary map[string]interface{}
	w, env = s.do(http.MethodGet, "/api/v1/financial/summary?period=today", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(env, &summary)
	s.Equal(50.0, summary["total_income"])
	s.Equal(50.0, summary["total_expense"])
	s.Equal(0.0, summary["net_profit"])
	period, ok := summary["period"].(map[string]interface{})
	s.Require().True(ok)
	today := time.Now().Format("2006-01-02")
	s.Equal(today, period["start_date"])
	s.Equal(today, period["end_date"])
}

func (s *routerSuite) TestCreatePurchaseValidation() {
	w, env := s.do(http.MethodPost, "/api/v1/purchases", s.adminToken, gin.H{"items": []gin.H{}})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Require().NotEmpty(env.Errors)
	s.Equal("items", env.Errors[0].Field)

	w, env = s.do(http.MethodPost, "/api/v1/purchases", s.adminToken, gin.H{
		"items": []gin.H{{"isbn": "111", "title": "X", "quantity": 1}},
	})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Require().NotEmpty(env.Errors)
	s.Equal("items[0].purchase_price", env.Errors[0].Field)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.adminToken)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)

	s.EqualValues(0, s.countOrders())
}

func (s *routerSuite) countOrders() int64 {
	var n int64
	s.Require().NoError(s.db.Model(&model.PurchaseOrder{}).Count(&n).Error)
	return n
}

func (s *routerSuite) TestSaleInsufficientStock() {
	w, env := s.do(http.MethodPost, "/api/v1/books", s.adminToken, gin.H{"isbn": "222", "title": "Y", "retail_price": "20", "stock": 2})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var book struct {
		ID int64 `json:"id"`
	}
	s.decode(env, &book)

	w, _ = s.do(http.MethodPost, "/api/v1/sales", s.clerkToken, gin.H{"book_id": book.ID, "quantity": 3, "sale_price": "20"})
	s.Equal(http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodPost, "/api/v1/sales", s.clerkToken, gin.H{"book_id": book.ID, "quantity": 2, "sale_price": "20"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var sale struct {
		TotalAmount float64 `json:"total_amount"`
	}
	s.decode(env, &sale)
	s.Equal(40.0, sale.TotalAmount)

	w, env = s.do(http.MethodGet, "/api/v1/sales/stats", s.clerkToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var stats map[string]interface{}
	s.decode(env, &stats)
	s.Equal(40.0, stats["total_sales"])
	s.Equal(2.0, stats["total_quantity"])
}

func (s *routerSuite) TestSaleRequiresPrice() {
	w, env := s.do(http.MethodPost, "/api/v1/books", s.adminToken, gin.H{"isbn": "333", "title": "Z", "retail_price": "15", "stock": 4})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var book struct {
		ID int64 `json:"id"`
	}
	s.decode(env, &book)

	w, env = s.do(http.MethodPost, "/api/v1/sales", s.clerkToken, gin.H{"book_id": book.ID, "quantity": 1})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Require().NotEmpty(env.Errors)
	s.Equal("sale_price", env.Errors[0].Field)

	var sales, records int64
	s.Require().NoError(s.db.Model(&model.SaleRecord{}).Count(&sales).Error)
	s.Require().NoError(s.db.Model(&model.FinancialRecord{}).Count(&records).Error)
	s.EqualValues(0, sales)
	s.EqualValues(0, records)

	w, env = s.do(http.MethodGet, fmt.Sprintf("/api/v1/books/%d", book.ID), s.clerkToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var got struct {
		Stock int `json:"stock"`
	}
	s.decode(env, &got)
	s.Equal(4, got.Stock)
}

func (s *routerSuite) TestFinancialSummaryDefaultsToToday() {
	w, env := s.do(http.MethodGet, "/api/v1/financial/summary", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var summary struct {
		Period struct {
			StartDate string `json:"start_date"`
			EndDate   string `json:"end_date"`
		} `json:"period"`
	}
	s.decode(env, &summary)
	today := time.Now().Format("2006-01-02")
	s.Equal(today, summary.Period.StartDate)
	s.Equal(today, summary.Period.EndDate)
}

func (s *routerSuite) TestOutboxFailedAndRequeue() {
	for _, m := range []struct{ key, event, status string }{
		{"SA1", model.EventSaleCreated, model.OutboxStatusFailed},
		{"SA2", model.EventSaleCreated, model.OutboxStatusFailed},
		{"PO1", model.EventPurchasePaid, model.OutboxStatusFailed},
		{"SA3", model.EventSaleCreated, model.OutboxStatusSent},
	} {
		s.Require().NoError(s.db.Create(&model.OutboxMessage{
			MessageKey: m.key,
			EventType:  m.event,
			Topic:      "bookstore.events",
			Payload:    datatypes.JSON(`{"event":"` + m.event + `"}`),
			Status:     m.status,
			RetryCount: 5,
		}).Error)
	}

	w, _ := s.do(http.MethodGet, "/api/v1/outbox/failed", s.adminToken, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w, env := s.do(http.MethodGet, "/api/v1/outbox/failed?event_type=sale.created", s.superToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var failed []struct {
		MessageKey string                 `json:"message_key"`
		Payload    map[string]interface{} `json:"payload"`
	}
	s.decode(env, &failed)
	s.Require().Len(failed, 2)
	s.Equal("SA2", failed[0].MessageKey)
	s.Equal("sale.created", failed[0].Payload["event"])

	w, env = s.do(http.MethodGet, "/api/v1/outbox/failed?event_type=book.deleted", s.superToken, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Require().NotEmpty(env.Errors)
	s.Equal("event_type", env.Errors[0].Field)

	var result struct {
		Requeued int64 `json:"requeued"`
	}
	w, env = s.do(http.MethodPost, "/api/v1/outbox/requeue", s.superToken, gin.H{"event_type": "purchase.paid"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &result)
	s.EqualValues(1, result.Requeued)

	var requeued model.OutboxMessage
	s.Require().NoError(s.db.Where("message_key = ?", "PO1").First(&requeued).Error)
	s.Equal(model.OutboxStatusPending, requeued.Status)
	s.Equal(0, requeued.RetryCount)

	w, env = s.do(http.MethodGet, "/api/v1/outbox/stats", s.superToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var counts map[string]int64
	s.decode(env, &counts)
	s.EqualValues(1, counts[model.OutboxStatusPending])
	s.EqualValues(2, counts[model.OutboxStatusFailed])
	s.EqualValues(1, counts[model.OutboxStatusSent])

	// 不带条件时重放剩下的全部失败消息
	w, env = s.do(http.MethodPost, "/api/v1/outbox/requeue", s.superToken, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(env, &result)
	s.EqualValues(2, result.Requeued)
}

func (s *routerSuite) TestNotFoundAndBadID() {
	w, env := s.do(http.MethodGet, "/api/v1/books/9999", s.clerkToken, nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(http.StatusNotFound, env.Code)

	w, env = s.do(http.MethodGet, "/api/v1/books/abc", s.clerkToken, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Require().NotEmpty(env.Errors)
	s.Equal("id", env.Errors[0].Field)

	w, _ = s.do(http.MethodGet, "/api/v1/books/low-stock", s.clerkToken, nil)
	s.Equal(http.StatusOK, w.Code)
}

func (s *routerSuite) TestExportFinancialRecords() {
	w, _ := s.do(http.MethodPost, "/api/v1/financial/records", s.superToken, gin.H{"type": "EXPENSE", "amount": "8.5", "description": "水电"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w, _ = s.do(http.MethodGet, "/api/v1/financial/records/export", s.adminToken, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(xlsxContentType, w.Header().Get("Content-Type"))
	s.Contains(w.Header().Get("Content-Disposition"), ".xlsx")
	s.NotZero(w.Body.Len())
}
