package handler

import (
	"bookstore/internal/repository"
	"bookstore/internal/service"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
)

// ListBooks 图书搜索
// GET /api/v1/books?search=&min_stock=&max_stock=&min_price=&max_price=&sort=&page=&per_page=
func (h *Handler) ListBooks(c *gin.Context) {
	q := newQueryParams(c)
	filter := repository.BookFilter{
		Search:   c.Query("search"),
		MinStock: q.intPtr("min_stock"),
		MaxStock: q.intPtr("max_stock"),
		MinPrice: q.decimalPtr("min_price"),
		MaxPrice: q.decimalPtr("max_price"),
		Sort:     c.Query("sort"),
	}
	filter.Page, filter.PageSize = q.page()
	if !q.ok() {
		return
	}

	books, total, err := h.bookService.Search(c.Request.Context(), filter)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, newPage(toBookDTOs(books), total, filter.Page, filter.PageSize))
}

// GetBook GET /api/v1/books/:id
func (h *Handler) GetBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	book, err := h.bookService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toBookDTO(book))
}

// CreateBook POST /api/v1/books
func (h *Handler) CreateBook(c *gin.Context) {
	var req service.BookRequest
	if !bindJSON(c, &req) {
		return
	}
	book, err := h.bookService.Create(c.Request.Context(), operatorID(c), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toBookDTO(book))
}

// UpdateBook 修改图书信息，库存不在这里改
// PUT /api/v1/books/:id
func (h *Handler) UpdateBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.BookRequest
	if !bindJSON(c, &req) {
		return
	}
	book, err := h.bookService.Update(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toBookDTO(book))
}

// DeleteBook DELETE /api/v1/books/:id
func (h *Handler) DeleteBook(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.bookService.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// AdjustStock 手工调整库存
// POST /api/v1/books/:id/stock
func (h *Handler) AdjustStock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	book, err := h.bookService.AdjustStock(c.Request.Context(), id, operatorID(c), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toBookDTO(book))
}

// LowStockBooks GET /api/v1/books/low-stock?threshold=
func (h *Handler) LowStockBooks(c *gin.Context) {
	q := newQueryParams(c)
	threshold := q.intValue("threshold", 0)
	if !q.ok() {
		return
	}
	books, err := h.bookService.LowStock(c.Request.Context(), threshold)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toBookDTOs(books))
}

// StockLogs GET /api/v1/books/:id/stock-logs
func (h *Handler) StockLogs(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	q := newQueryParams(c)
	page, perPage := q.page()
	if !q.ok() {
		return
	}
	logs, total, err := h.bookService.StockLogs(c.Request.Context(), id, page, perPage)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, newPage(toStockLogDTOs(logs), total, page, perPage))
}
