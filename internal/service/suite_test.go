package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bookstore/internal/auth"
	"bookstore/internal/config"
	"bookstore/internal/infrastructure/database"
	"bookstore/internal/infrastructure/lock"
	"bookstore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// serviceSuite 每个用例一个独立的内存 SQLite
type serviceSuite struct {
	suite.Suite

	ctx   context.Context
	db    *gorm.DB
	cfg   *config.Config
	clock time.Time

	books     *BookService
	purchases *PurchaseService
	sales     *SaleService
	ledger    *FinancialService
	users     *UserService
	dashboard *DashboardService

	operator *model.User
}

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Enabled: true,
			Topic:   config.KafkaTopicConfig{Events: "bookstore.events"},
		},
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret",
			JWTIssuer:         "bookstore",
			TokenTTL:          time.Hour,
			LoginRate:         "100-M",
			BootstrapUsername: "admin",
			BootstrapPassword: "admin123",
		},
		Business: config.BusinessConfig{
			RetailMarkup:      "1.3",
			LowStockThreshold: 10,
			MaxTrendDays:      365,
			LockTTL:           30 * time.Second,
		},
	}
}

func openTestDB(name string) (*gorm.DB, error) {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	return database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
}

func (s *serviceSuite) SetupTest() {
	db, err := openTestDB(s.T().Name())
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.db = db
	s.cfg = testConfig()
	s.clock = time.Date(2024, 3, 15, 10, 30, 0, 0, time.Local)
	now := func() time.Time { return s.clock }

	s.books = NewBookService(db, lock.NoopLocker{}, s.cfg)
	s.purchases = NewPurchaseService(db, lock.NoopLocker{}, s.cfg)
	s.purchases.now = now
	s.purchases.ledger.now = now
	s.sales = NewSaleService(db, lock.NoopLocker{}, s.cfg)
	s.sales.now = now
	s.sales.ledger.now = now
	s.ledger = NewFinancialService(db, s.cfg)
	s.ledger.now = now
	s.users = NewUserService(db, auth.NewTokenManager(s.cfg.Auth.JWTSecret, s.cfg.Auth.JWTIssuer, time.Hour), s.cfg)
	s.dashboard = NewDashboardService(db, s.cfg)
	s.dashboard.now = now
	s.dashboard.financial.now = now

	s.operator, err = s.users.Create(s.ctx, &CreateUserRequest{
		Username: "operator",
		Password: "secret123",
		RealName: "店员甲",
		Role:     model.RoleAdmin,
	})
	s.Require().NoError(err)
}

func (s *serviceSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *serviceSuite) createBook(isbn, title, price string, stock int) *model.Book {
	book, err := s.books.Create(s.ctx, s.operator.ID, &BookRequest{
		ISBN:        isbn,
		Title:       title,
		Author:      "作者",
		Publisher:   "出版社",
		RetailPrice: decimal.RequireFromString(price),
		Stock:       stock,
	})
	s.Require().NoError(err)
	return book
}

func (s *serviceSuite) stockOf(bookID int64) int {
	book, err := s.books.Get(s.ctx, bookID)
	s.Require().NoError(err)
	return book.Stock
}

func (s *serviceSuite) count(m interface{}, query string, args ...interface{}) int64 {
	var n int64
	q := s.db.Model(m)
	if query != "" {
		q = q.Where(query, args...)
	}
	s.Require().NoError(q.Count(&n).Error)
	return n
}

// assertMoney 比较两位小数后的金额
func (s *serviceSuite) assertMoney(expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	s.Equal(expected, actual.Round(2).StringFixed(2), msgAndArgs...)
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}
