package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"bookstore/internal/apperrors"
	"bookstore/internal/config"
	"bookstore/internal/model"
	"bookstore/internal/repository"
	"bookstore/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const maxExportRows = 50000

// 统计周期
const (
	PeriodToday  = "today"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	PeriodYear   = "year"
	PeriodCustom = "custom"
)

type FinancialService struct {
	db            *gorm.DB
	cfg           *config.Config
	financialRepo *repository.FinancialRepository
	now           func() time.Time
}

func NewFinancialService(db *gorm.DB, cfg *config.Config) *FinancialService {
	return &FinancialService{
		db:            db,
		cfg:           cfg,
		financialRepo: repository.NewFinancialRepository(db),
		now:           time.Now,
	}
}

// PostRequest 记一笔账，金额必须大于 0，方向由 Type 决定
type PostRequest struct {
	Type        string          `json:"type" validate:"required,oneof=INCOME EXPENSE"`
	Amount      decimal.Decimal `json:"amount"`
	SourceType  string          `json:"source_type" validate:"required,oneof=PURCHASE SALE OTHER"`
	SourceID    int64           `json:"source_id" validate:"gte=0"`
	OperatorID  int64           `json:"operator_id" validate:"required,gt=0"`
	Description string          `json:"description" validate:"max=500"`
	RecordTime  time.Time       `json:"-"` // 为空时取当前时间
}

// Post 独立记账（手工记账），自带事务
func (s *FinancialService) Post(ctx context.Context, req *PostRequest) (*model.FinancialRecord, error) {
	var record *model.FinancialRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = s.PostTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// PostTx 在调用方的事务内追加一条流水
func (s *FinancialService) PostTx(ctx context.Context, tx *gorm.DB, req *PostRequest) (*model.FinancialRecord, error) {
	if err := validateStruct(req, ""); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", "必须大于 0")
	}

	recordTime := req.RecordTime
	if recordTime.IsZero() {
		recordTime = s.now()
	}

	record := &model.FinancialRecord{
		RecordNo:    idgen.FinancialNo(),
		Type:        req.Type,
		Amount:      req.Amount.Round(2),
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		OperatorID:  req.OperatorID,
		RecordTime:  recordTime,
		Description: req.Description,
	}
	if err := s.financialRepo.Create(ctx, tx, record); err != nil {
		return nil, fmt.Errorf("记账失败: %w", err)
	}
	return record, nil
}

func (s *FinancialService) Get(ctx context.Context, id int64) (*model.FinancialRecord, error) {
	return s.financialRepo.GetByID(ctx, id)
}

func (s *FinancialService) List(ctx context.Context, f repository.FinancialFilter) ([]*model.FinancialRecord, int64, error) {
	return s.financialRepo.List(ctx, f)
}

// UpdateDescription 流水只能改描述
func (s *FinancialService) UpdateDescription(ctx context.Context, id int64, description string) (*model.FinancialRecord, error) {
	if len([]rune(description)) > 500 {
		return nil, apperrors.NewValidationError("description", "长度不能超过 500")
	}
	record, err := s.financialRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.financialRepo.UpdateDescription(ctx, id, description); err != nil {
		return nil, err
	}
	record.Description = description
	return record, nil
}

// Totals 区间汇总
type Totals struct {
	TotalIncome     decimal.Decimal
	TotalExpense    decimal.Decimal
	SaleIncome      decimal.Decimal
	PurchaseExpense decimal.Decimal
	PurchaseIncome  decimal.Decimal
	OtherIncome     decimal.Decimal
	OtherExpense    decimal.Decimal
}

func (t *Totals) NetProfit() decimal.Decimal {
	return t.TotalIncome.Sub(t.TotalExpense)
}

// aggregate 把分组合计折算成总收入/总支出及各来源明细，没有数据时全部为 0
func aggregate(rows []repository.SourceTotal) *Totals {
	t := &Totals{
		TotalIncome:     decimal.Zero,
		TotalExpense:    decimal.Zero,
		SaleIncome:      decimal.Zero,
		PurchaseExpense: decimal.Zero,
		PurchaseIncome:  decimal.Zero,
		OtherIncome:     decimal.Zero,
		OtherExpense:    decimal.Zero,
	}
	// SQLite 的 SUM 返回浮点，先按分取整
	for _, row := range rows {
		amount := row.Total.Round(2)
		switch row.Type {
		case model.FinancialTypeIncome:
			t.TotalIncome = t.TotalIncome.Add(amount)
			switch row.SourceType {
			case model.SourceTypeSale:
				t.SaleIncome = t.SaleIncome.Add(amount)
			case model.SourceTypePurchase:
				t.PurchaseIncome = t.PurchaseIncome.Add(amount)
			default:
				t.OtherIncome = t.OtherIncome.Add(amount)
			}
		case model.FinancialTypeExpense:
			t.TotalExpense = t.TotalExpense.Add(amount)
			switch row.SourceType {
			case model.SourceTypePurchase:
				t.PurchaseExpense = t.PurchaseExpense.Add(amount)
			default:
				t.OtherExpense = t.OtherExpense.Add(amount)
			}
		}
	}
	return t
}

// Summary [start, end) 区间收支汇总
func (s *FinancialService) Summary(ctx context.Context, start, end time.Time) (*Totals, error) {
	return s.summary(ctx, nil, start, end)
}

func (s *FinancialService) summary(ctx context.Context, tx *gorm.DB, start, end time.Time) (*Totals, error) {
	if !end.After(start) {
		return nil, apperrors.NewValidationError("end_date", "结束时间必须晚于开始时间")
	}
	rows, err := s.financialRepo.SumBySource(ctx, tx, start, end)
	if err != nil {
		return nil, fmt.Errorf("统计财务数据失败: %w", err)
	}
	return aggregate(rows), nil
}

// Period 统计周期：Start 含，End 不含；StartDate/EndDate 为闭区间的日期展示
type Period struct {
	Start     time.Time
	End       time.Time
	StartDate string
	EndDate   string
}

// ResolvePeriod today|week|month|year 以今天结束，week 从周一开始；custom 需要起止日期
func (s *FinancialService) ResolvePeriod(period, startDate, endDate string) (*Period, error) {
	today := DayStart(s.now())
	var start, lastDay time.Time

	switch period {
	case "", PeriodToday:
		start, lastDay = today, today
	case PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		start, lastDay = today.AddDate(0, 0, -offset), today
	case PeriodMonth:
		start, lastDay = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.Local), today
	case PeriodYear:
		start, lastDay = time.Date(today.Year(), 1, 1, 0, 0, 0, 0, time.Local), today
	case PeriodCustom:
		if startDate == "" || endDate == "" {
			return nil, apperrors.NewValidationError("start_date", "自定义时间范围需要提供开始和结束日期")
		}
		var err error
		if start, err = ParseDate("start_date", startDate); err != nil {
			return nil, err
		}
		if lastDay, err = ParseDate("end_date", endDate); err != nil {
			return nil, err
		}
		if lastDay.Before(start) {
			return nil, apperrors.NewValidationError("end_date", "结束日期不能早于开始日期")
		}
	default:
		return nil, apperrors.NewValidationError("period", "必须是以下值之一: today week month year custom")
	}

	return &Period{
		Start:     start,
		End:       lastDay.AddDate(0, 0, 1),
		StartDate: start.Format(DateLayout),
		EndDate:   lastDay.Format(DateLayout),
	}, nil
}

// GenerateDailySummary 重新计算某天的汇总并按日期覆盖写入，重复调用结果相同
func (s *FinancialService) GenerateDailySummary(ctx context.Context, date time.Time) (*model.FinancialSummary, error) {
	var summary *model.FinancialSummary
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		summary, err = s.generateDailySummary(ctx, tx, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "生成每日财务汇总",
		"date", summary.SummaryDate,
		"total_income", summary.TotalIncome.StringFixed(2),
		"total_expense", summary.TotalExpense.StringFixed(2),
	)
	return summary, nil
}

func (s *FinancialService) generateDailySummary(ctx context.Context, tx *gorm.DB, date time.Time) (*model.FinancialSummary, error) {
	start := DayStart(date)
	totals, err := s.summary(ctx, tx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	day := start.Format(DateLayout)
	row := &model.FinancialSummary{
		SummaryDate:     day,
		TotalIncome:     totals.TotalIncome.Round(2),
		TotalExpense:    totals.TotalExpense.Round(2),
		SaleIncome:      totals.SaleIncome.Round(2),
		PurchaseExpense: totals.PurchaseExpense.Round(2),
		PurchaseIncome:  totals.PurchaseIncome.Round(2),
		OtherIncome:     totals.OtherIncome.Round(2),
		OtherExpense:    totals.OtherExpense.Round(2),
	}
	if err := s.financialRepo.UpsertSummary(ctx, tx, row); err != nil {
		return nil, fmt.Errorf("写入财务汇总失败: %w", err)
	}
	// upsert 后 ID 不一定回填，重新读一次
	return s.financialRepo.GetSummaryByDate(ctx, tx, day)
}

// GeneratePeriodSummary 为闭区间内的每一天生成汇总
func (s *FinancialService) GeneratePeriodSummary(ctx context.Context, startDate, endDate string) ([]*model.FinancialSummary, error) {
	start, err := ParseDate("start_date", startDate)
	if err != nil {
		return nil, err
	}
	last, err := ParseDate("end_date", endDate)
	if err != nil {
		return nil, err
	}
	if last.Before(start) {
		return nil, apperrors.NewValidationError("end_date", "结束日期不能早于开始日期")
	}
	if days := int(last.Sub(start).Hours()/24+0.5) + 1; days > s.cfg.Business.MaxTrendDays {
		return nil, apperrors.NewValidationError("end_date", fmt.Sprintf("时间范围不能超过 %d 天", s.cfg.Business.MaxTrendDays))
	}

	var summaries []*model.FinancialSummary
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for day := start; !day.After(last); day = day.AddDate(0, 0, 1) {
			summary, err := s.generateDailySummary(ctx, tx, day)
			if err != nil {
				return err
			}
			summaries = append(summaries, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "批量生成财务汇总", "start_date", startDate, "end_date", endDate, "days", len(summaries))
	return summaries, nil
}

// DailySummaries 已生成的汇总快照，日期闭区间
func (s *FinancialService) DailySummaries(ctx context.Context, startDate, endDate string) ([]*model.FinancialSummary, error) {
	if startDate != "" {
		if _, err := ParseDate("start_date", startDate); err != nil {
			return nil, err
		}
	}
	if endDate != "" {
		if _, err := ParseDate("end_date", endDate); err != nil {
			return nil, err
		}
	}
	return s.financialRepo.ListSummaries(ctx, startDate, endDate)
}

// TrendPoint 某天的收支
type TrendPoint struct {
	Date    string
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// Trends 最近 days 天（含今天）每天的收入和支出，没有流水的日期补 0
func (s *FinancialService) Trends(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 30
	}
	if days > s.cfg.Business.MaxTrendDays {
		days = s.cfg.Business.MaxTrendDays
	}

	end := DayStart(s.now()).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -days)

	entries, err := s.financialRepo.ListEntries(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("查询财务趋势失败: %w", err)
	}

	points := make([]TrendPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		date := start.AddDate(0, 0, i).Format(DateLayout)
		points[i] = TrendPoint{Date: date, Income: decimal.Zero, Expense: decimal.Zero}
		index[date] = i
	}
	for _, e := range entries {
		i, ok := index[e.RecordTime.In(time.Local).Format(DateLayout)]
		if !ok {
			continue
		}
		switch e.Type {
		case model.FinancialTypeIncome:
			points[i].Income = points[i].Income.Add(e.Amount)
		case model.FinancialTypeExpense:
			points[i].Expense = points[i].Expense.Add(e.Amount)
		}
	}
	return points, nil
}

var exportHeaders = []interface{}{"流水号", "类型", "金额", "来源", "来源ID", "操作人ID", "时间", "描述"}

// Export 导出财务流水为 xlsx
func (s *FinancialService) Export(ctx context.Context, f repository.FinancialFilter) (*bytes.Buffer, error) {
	records, err := s.financialRepo.ListAll(ctx, f, maxExportRows)
	if err != nil {
		return nil, fmt.Errorf("查询财务记录失败: %w", err)
	}

	file := excelize.NewFile()
	defer file.Close()

	const sheet = "财务记录"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := file.SetSheetRow(sheet, "A1", &exportHeaders); err != nil {
		return nil, err
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			r.RecordNo,
			r.Type,
			r.Amount.Round(2).InexactFloat64(),
			r.SourceType,
			r.SourceID,
			r.OperatorID,
			r.RecordTime.In(time.Local).Format("2006-01-02 15:04:05"),
			r.Description,
		}
		if err := file.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("生成 Excel 失败: %w", err)
	}
	return buf, nil
}
