package handler

import (
	"bookstore/internal/repository"
	"bookstore/internal/service"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreateSale 登记销售，sale_price 必填
// POST /api/v1/sales
func (h *Handler) CreateSale(c *gin.Context) {
	var req service.CreateSaleRequest
	if !bindJSON(c, &req) {
		return
	}
	sale, err := h.saleService.CreateSale(c.Request.Context(), operatorID(c), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toSaleDTO(sale))
}

// ListSales GET /api/v1/sales?book_id=&seller_id=&start_date=&end_date=&page=&per_page=
func (h *Handler) ListSales(c *gin.Context) {
	q := newQueryParams(c)
	filter := repository.SaleFilter{
		BookID:   q.int64Value("book_id"),
		SellerID: q.int64Value("seller_id"),
	}
	filter.Page, filter.PageSize = q.page()
	if !q.ok() {
		return
	}
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	filter.Start, filter.End = start, end

	sales, total, err := h.saleService.List(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	list := make([]saleDTO, 0, len(sales))
	for _, s := range sales {
		list = append(list, toSaleDTO(s))
	}
	response.Success(c, newPage(list, total, filter.Page, filter.PageSize))
}

// GetSale GET /api/v1/sales/:id
func (h *Handler) GetSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sale, err := h.saleService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toSaleDTO(sale))
}

// UpdateSaleRemark PUT /api/v1/sales/:id/remark
func (h *Handler) UpdateSaleRemark(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body remarkBody
	if !bindJSON(c, &body) {
		return
	}
	sale, err := h.saleService.UpdateRemark(c.Request.Context(), id, body.Remark)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toSaleDTO(sale))
}

// SaleStats GET /api/v1/sales/stats?start_date=&end_date=
func (h *Handler) SaleStats(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	stats, err := h.saleService.StatsByPeriod(c.Request.Context(), start, end)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"total_sales":    money(stats.Totals.TotalAmount),
		"total_quantity": stats.Totals.TotalQuantity,
		"total_records":  stats.Totals.TotalRecords,
		"book_stats":     toBookSaleStatDTOs(stats.TopBooks),
	})
}
