package handler

import (
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardOverview GET /api/v1/dashboard/overview
func (h *Handler) DashboardOverview(c *gin.Context) {
	o, err := h.dashboardService.Overview(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"inventory": gin.H{
			"total_titles":    o.Inventory.TotalTitles,
			"total_stock":     o.Inventory.TotalStock,
			"low_stock_count": o.Inventory.LowStockCount,
		},
		"month_sales": gin.H{
			"since":          o.MonthStart,
			"total_sales":    money(o.MonthSales.TotalAmount),
			"total_quantity": o.MonthSales.TotalQuantity,
			"total_records":  o.MonthSales.TotalRecords,
		},
		"ledger":    toTotalsDTO(o.Ledger),
		"top_books": toBookSaleStatDTOs(o.TopBooks),
	})
}

// SalesRanking GET /api/v1/dashboard/sales-ranking?start_date=&end_date=
func (h *Handler) SalesRanking(c *gin.Context) {
	start, end, ok := dateRange(c)
	if !ok {
		return
	}
	ranking, err := h.dashboardService.SalesRanking(c.Request.Context(), start, end)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"top_books":   toBookSaleStatDTOs(ranking.TopBooks),
		"top_sellers": toSellerSaleStatDTOs(ranking.TopSellers),
	})
}
