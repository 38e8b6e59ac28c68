package handler

import (
	"fmt"
	"net/http"
	"time"

	"bookstore/internal/model"
	"bookstore/internal/repository"
	"bookstore/internal/service"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func financialFilter(c *gin.Context) (repository.FinancialFilter, bool) {
	q := newQueryParams(c)
	filter := repository.FinancialFilter{
		Type:       c.Query("type"),
		SourceType: c.Query("source_type"),
		OperatorID: q.int64Value("operator_id"),
	}
	filter.Page, filter.PageSize = q.page()
	if filter.Type != "" && !model.ValidFinancialType(filter.Type) {
		q.verr.Add("type", "必须是以下值之一: INCOME EXPENSE")
	}
	if filter.SourceType != "" && !model.ValidSourceType(filter.SourceType) {
		q.verr.Add("source_type", "必须是以下值之一: PURCHASE SALE OTHER")
	}
	if !q.ok() {
		return filter, false
	}
	start, end, ok := dateRange(c)
	if !ok {
		return filter, false
	}
	filter.Start, filter.End = start, end
	return filter, true
}

// ListFinancialRecords GET /api/v1/financial/records?type=&source_type=&operator_id=&start_date=&end_date=
func (h *Handler) ListFinancialRecords(c *gin.Context) {
	filter, ok := financialFilter(c)
	if !ok {
		return
	}
	records, total, err := h.financialService.List(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	list := make([]financialRecordDTO, 0, len(records))
	for _, r := range records {
		list = append(list, toFinancialRecordDTO(r))
	}
	response.Success(c, newPage(list, total, filter.Page, filter.PageSize))
}

// GetFinancialRecord GET /api/v1/financial/records/:id
func (h *Handler) GetFinancialRecord(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	record, err := h.financialService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toFinancialRecordDTO(record))
}

type manualPostBody struct {
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CreateFinancialRecord 手工记账，来源固定为 OTHER
// POST /api/v1/financial/records
func (h *Handler) CreateFinancialRecord(c *gin.Context) {
	var body manualPostBody
	if !bindJSON(c, &body) {
		return
	}
	record, err := h.financialService.Post(c.Request.Context(), &service.PostRequest{
		Type:        body.Type,
		Amount:      body.Amount,
		SourceType:  model.SourceTypeOther,
		OperatorID:  operatorID(c),
		Description: body.Description,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toFinancialRecordDTO(record))
}

type descriptionBody struct {
	Description string `json:"description"`
}

// UpdateFinancialRecord 只允许修改描述
// PUT /api/v1/financial/records/:id
func (h *Handler) UpdateFinancialRecord(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body descriptionBody
	if !bindJSON(c, &body) {
		return
	}
	record, err := h.financialService.UpdateDescription(c.Request.Context(), id, body.Description)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toFinancialRecordDTO(record))
}

// ExportFinancialRecords GET /api/v1/financial/records/export
func (h *Handler) ExportFinancialRecords(c *gin.Context) {
	filter, ok := financialFilter(c)
	if !ok {
		return
	}
	buf, err := h.financialService.Export(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	filename := fmt.Sprintf("financial_records_%s.xlsx", time.Now().Format("20060102150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// FinancialSummary 实时汇总
// GET /api/v1/financial/summary?period=today|week|month|year|custom&start_date=&end_date=
func (h *Handler) FinancialSummary(c *gin.Context) {
	period, err := h.financialService.ResolvePeriod(c.Query("period"), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	totals, err := h.financialService.Summary(c.Request.Context(), period.Start, period.End)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, periodSummaryDTO{
		totalsDTO: toTotalsDTO(totals),
		Period: periodDTO{
			StartDate: period.StartDate,
			EndDate:   period.EndDate,
		},
	})
}

// DailySummaries 已生成的日汇总快照
// GET /api/v1/financial/daily-summary?start_date=&end_date=
func (h *Handler) DailySummaries(c *gin.Context) {
	list, err := h.financialService.DailySummaries(c.Request.Context(), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toFinancialSummaryDTOs(list))
}

type summaryDateBody struct {
	Date string `json:"date"`
}

// GenerateDailySummary 生成（或重算）某天的汇总，date 为空时取今天
// POST /api/v1/financial/generate-daily-summary
func (h *Handler) GenerateDailySummary(c *gin.Context) {
	var body summaryDateBody
	if c.Request.ContentLength != 0 && !bindJSON(c, &body) {
		return
	}
	date := service.DayStart(time.Now())
	if body.Date != "" {
		d, err := service.ParseDate("date", body.Date)
		if err != nil {
			response.FromError(c, err)
			return
		}
		date = d
	}
	summary, err := h.financialService.GenerateDailySummary(c.Request.Context(), date)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toFinancialSummaryDTO(summary))
}

type periodBody struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// GeneratePeriodSummary POST /api/v1/financial/generate-period-summary
func (h *Handler) GeneratePeriodSummary(c *gin.Context) {
	var body periodBody
	if !bindJSON(c, &body) {
		return
	}
	list, err := h.financialService.GeneratePeriodSummary(c.Request.Context(), body.StartDate, body.EndDate)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toFinancialSummaryDTOs(list))
}

// SummaryTrends GET /api/v1/financial/summary-trends?days=30
func (h *Handler) SummaryTrends(c *gin.Context) {
	q := newQueryParams(c)
	days := q.intValue("days", 30)
	if !q.ok() {
		return
	}
	points, err := h.financialService.Trends(c.Request.Context(), days)
	if err != nil {
		response.FromError(c, err)
		return
	}
	list := make([]gin.H, 0, len(points))
	for _, p := range points {
		list = append(list, gin.H{
			"date":    p.Date,
			"income":  money(p.Income),
			"expense": money(p.Expense),
			"profit":  money(p.Income.Sub(p.Expense)),
		})
	}
	response.Success(c, list)
}
