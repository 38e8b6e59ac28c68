package service

import (
	"context"
	"fmt"
	"time"

	"bookstore/internal/config"
	"bookstore/internal/repository"

	"gorm.io/gorm"
)

type DashboardService struct {
	cfg       *config.Config
	bookRepo  *repository.BookRepository
	saleRepo  *repository.SaleRepository
	financial *FinancialService
	now       func() time.Time
}

func NewDashboardService(db *gorm.DB, cfg *config.Config) *DashboardService {
	return &DashboardService{
		cfg:       cfg,
		bookRepo:  repository.NewBookRepository(db),
		saleRepo:  repository.NewSaleRepository(db),
		financial: NewFinancialService(db, cfg),
		now:       time.Now,
	}
}

type Overview struct {
	Inventory  *repository.InventoryStats
	MonthSales *repository.SaleTotals
	Ledger     *Totals // 全部流水
	MonthStart string
	TopBooks   []*repository.BookSaleStat
}

// Overview 首页概览：库存、本月销售、账务合计、畅销书前 5
func (s *DashboardService) Overview(ctx context.Context) (*Overview, error) {
	inventory, err := s.bookRepo.InventoryStats(ctx, s.cfg.Business.LowStockThreshold)
	if err != nil {
		return nil, fmt.Errorf("统计库存失败: %w", err)
	}

	today := DayStart(s.now())
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.Local)
	monthFilter := repository.SaleFilter{Start: &monthStart}
	monthSales, err := s.saleRepo.Totals(ctx, monthFilter)
	if err != nil {
		return nil, fmt.Errorf("统计本月销售失败: %w", err)
	}

	ledger, err := s.financial.Summary(ctx, time.Unix(0, 0), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	top, err := s.saleRepo.TopBooks(ctx, repository.SaleFilter{}, 5)
	if err != nil {
		return nil, fmt.Errorf("统计畅销书失败: %w", err)
	}

	return &Overview{
		Inventory:  inventory,
		MonthSales: monthSales,
		Ledger:     ledger,
		MonthStart: monthStart.Format(DateLayout),
		TopBooks:   top,
	}, nil
}

type SalesRanking struct {
	TopBooks   []*repository.BookSaleStat
	TopSellers []*repository.SellerSaleStat
}

// SalesRanking 区间内销量前 10 的图书和销售额前 10 的店员
func (s *DashboardService) SalesRanking(ctx context.Context, start, end *time.Time) (*SalesRanking, error) {
	f := repository.SaleFilter{Start: start, End: end}
	books, err := s.saleRepo.TopBooks(ctx, f, 10)
	if err != nil {
		return nil, fmt.Errorf("统计图书排行失败: %w", err)
	}
	sellers, err := s.saleRepo.TopSellers(ctx, f, 10)
	if err != nil {
		return nil, fmt.Errorf("统计店员排行失败: %w", err)
	}
	return &SalesRanking{TopBooks: books, TopSellers: sellers}, nil
}
