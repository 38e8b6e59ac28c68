package handler

import (
	"bookstore/internal/service"
	"bookstore/pkg/response"

	"github.com/gin-gonic/gin"
)

// Login POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.userService.Login(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{
		"token":      result.Token,
		"token_type": "Bearer",
		"expires_in": result.ExpiresIn,
		"user":       toUserDTO(result.User),
	})
}

// Profile GET /api/v1/auth/profile
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.userService.Get(c.Request.Context(), operatorID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toUserDTO(user))
}

// ChangePassword POST /api/v1/auth/change-password
func (h *Handler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.userService.ChangePassword(c.Request.Context(), operatorID(c), &req); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListUsers GET /api/v1/users?search=&role=&page=&per_page=
func (h *Handler) ListUsers(c *gin.Context) {
	q := newQueryParams(c)
	page, perPage := q.page()
	if !q.ok() {
		return
	}
	users, total, err := h.userService.List(c.Request.Context(), c.Query("search"), c.Query("role"), page, perPage)
	if err != nil {
		response.FromError(c, err)
		return
	}
	list := make([]userDTO, 0, len(users))
	for _, u := range users {
		list = append(list, toUserDTO(u))
	}
	response.Success(c, newPage(list, total, page, perPage))
}

// GetUser GET /api/v1/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toUserDTO(user))
}

// CreateUser POST /api/v1/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.Create(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, toUserDTO(user))
}

// UpdateUser PUT /api/v1/users/:id
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.userService.Update(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, toUserDTO(user))
}

// DeleteUser 不能删除自己，有业务记录的用户不能删除
// DELETE /api/v1/users/:id
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.userService.Delete(c.Request.Context(), id, operatorID(c)); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}
