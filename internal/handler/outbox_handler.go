package handler

import (
	"bookstore/internal/service"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
)

// OutboxStats GET /api/v1/outbox/stats
func (h *Handler) OutboxStats(c *gin.Context) {
	counts, err := h.outboxService.Stats(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, counts)
}

// FailedEvents GET /api/v1/outbox/failed?event_type=&limit=
func (h *Handler) FailedEvents(c *gin.Context) {
	q := newQueryParams(c)
	limit := q.intValue("limit", 0)
	if !q.ok() {
		return
	}
	messages, err := h.outboxService.Failed(c.Request.Context(), c.Query("event_type"), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toOutboxMessageDTOs(messages))
}

// RequeueEvents 请求体为空时重放全部失败消息
// POST /api/v1/outbox/requeue
func (h *Handler) RequeueEvents(c *gin.Context) {
	var req service.RequeueRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	n, err := h.outboxService.Requeue(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"requeued": n})
}
