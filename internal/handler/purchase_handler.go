package handler

import (
	"context"
	"fmt"

	"bookstore/internal/apperrors"
	"bookstore/internal/model"
	"bookstore/internal/repository"
	"bookstore/internal/service"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// purchaseItemBody 进货明细：带 book_id 的是已有图书，否则按新书处理
type purchaseItemBody struct {
	BookID        *int64           `json:"book_id"`
	ISBN          string           `json:"isbn"`
	Title         string           `json:"title"`
	Author        string           `json:"author"`
	Publisher     string           `json:"publisher"`
	Quantity      int              `json:"quantity"`
	PurchasePrice *decimal.Decimal `json:"purchase_price"`
}

type createPurchaseBody struct {
	Remark string             `json:"remark"`
	Items  []purchaseItemBody `json:"items"`
}

func (b *createPurchaseBody) toRequest() (*service.CreatePurchaseRequest, error) {
	verr := &apperrors.ValidationError{}
	req := &service.CreatePurchaseRequest{Remark: b.Remark}
	for i, item := range b.Items {
		if item.PurchasePrice == nil {
			verr.Add(fmt.Sprintf("items[%d].purchase_price", i), "不能为空")
			continue
		}
		if item.BookID != nil {
			req.Items = append(req.Items, service.ExistingBookLine{
				BookID:        *item.BookID,
				Quantity:      item.Quantity,
				PurchasePrice: *item.PurchasePrice,
			})
			continue
		}
		req.Items = append(req.Items, service.NewTitleLine{
			ISBN:          item.ISBN,
			Title:         item.Title,
			Author:        item.Author,
			Publisher:     item.Publisher,
			Quantity:      item.Quantity,
			PurchasePrice: *item.PurchasePrice,
		})
	}
	if verr.HasErrors() {
		return nil, verr
	}
	return req, nil
}

// CreatePurchase POST /api/v1/purchases
func (h *Handler) CreatePurchase(c *gin.Context) {
	var body createPurchaseBody
	if !bindJSON(c, &body) {
		return
	}
	req, err := body.toRequest()
	if err != nil {
		response.FromError(c, err)
		return
	}
	order, err := h.purchaseService.CreateOrder(c.Request.Context(), operatorID(c), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toPurchaseDTO(order))
}

// ListPurchases GET /api/v1/purchases?status=&creator_id=&start_date=&end_date=&page=&per_page=
func (h *Handler) ListPurchases(c *gin.Context) {
	q := newQueryParams(c)
	filter := repository.PurchaseFilter{
		Status:    c.Query("status"),
		CreatorID: q.int64Value("creator_id"),
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

	orders, total, err := h.purchaseService.List(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	list := make([]purchaseDTO, 0, len(orders))
	for _, o := range orders {
		list = append(list, toPurchaseDTO(o))
	}
	response.Success(c, newPage(list, total, filter.Page, filter.PageSize))
}

// GetPurchase GET /api/v1/purchases/:id
func (h *Handler) GetPurchase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := h.purchaseService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toPurchaseDTO(order))
}

// PayPurchase POST /api/v1/purchases/:id/pay
func (h *Handler) PayPurchase(c *gin.Context) {
	h.transitPurchase(c, h.purchaseService.Pay)
}

// ReturnPurchase POST /api/v1/purchases/:id/return
func (h *Handler) ReturnPurchase(c *gin.Context) {
	h.transitPurchase(c, h.purchaseService.ReturnOrder)
}

// CancelPurchase POST /api/v1/purchases/:id/cancel
func (h *Handler) CancelPurchase(c *gin.Context) {
	h.transitPurchase(c, h.purchaseService.Cancel)
}

type purchaseTransition func(ctx context.Context, orderID, operatorID int64) (*model.PurchaseOrder, error)

func (h *Handler) transitPurchase(c *gin.Context, fn purchaseTransition) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := fn(c.Request.Context(), id, operatorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toPurchaseDTO(order))
}

type remarkBody struct {
	Remark string `json:"remark"`
}

// UpdatePurchaseRemark PUT /api/v1/purchases/:id/remark
func (h *Handler) UpdatePurchaseRemark(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body remarkBody
	if !bindJSON(c, &body) {
		return
	}
	order, err := h.purchaseService.UpdateRemark(c.Request.Context(), id, body.Remark)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toPurchaseDTO(order))
}
