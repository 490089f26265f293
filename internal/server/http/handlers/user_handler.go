package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/server/http/dto"
	"github.com/prasadamconnect/engine/internal/server/http/middleware"
	"github.com/prasadamconnect/engine/internal/service/registrar"
	"github.com/prasadamconnect/engine/internal/service/subscription"
)

// UserHandler обрабатывает регистрацию, профиль и подписку.
type UserHandler struct {
	users         UserService
	subscriptions SubscriptionService
}

// NewUserHandler создаёт UserHandler.
func NewUserHandler(users UserService, subscriptions SubscriptionService) *UserHandler {
	return &UserHandler{users: users, subscriptions: subscriptions}
}

// Register обрабатывает POST /api/create-user-with-login.
func (h *UserHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	role := domain.UserRole(req.Role)
	if req.Role == "" {
		role = domain.RoleStudent
	}

	user, err := h.users.CreateUserWithLogin(c.Request.Context(), registrar.RegistrationInput{
		UID:     req.UID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
		Role:    role,
	}, clientContext(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user)
}

// CheckUser обрабатывает GET /api/check-user?phone=...
func (h *UserHandler) CheckUser(c *gin.Context) {
	phone := c.Query("phone")
	if phone == "" {
		badRequest(c, "phone query parameter is required")
		return
	}

	exists, err := h.users.CheckUserExists(c.Request.Context(), phone)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CheckUserResponse{Exists: exists})
}

// GetUser обрабатывает GET /api/user/:uid.
func (h *UserHandler) GetUser(c *gin.Context) {
	uid := c.Param("uid")
	if uid != middleware.CallerUID(c) {
		writeError(c, domain.ErrForbidden)
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile обрабатывает PATCH /api/user/:uid.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	uid := c.Param("uid")
	if uid != middleware.CallerUID(c) {
		writeError(c, domain.ErrForbidden)
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), uid, registrar.ProfileUpdate{
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// RecordLogin обрабатывает POST /api/login-history.
func (h *UserHandler) RecordLogin(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	record, err := h.users.RecordLogin(c.Request.Context(), req.UID, req.Phone, clientContext(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// LoginHistory обрабатывает GET /api/login-history/:uid.
func (h *UserHandler) LoginHistory(c *gin.Context) {
	uid := c.Param("uid")
	if uid != middleware.CallerUID(c) {
		writeError(c, domain.ErrForbidden)
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	records, err := h.users.ListLoginHistory(c.Request.Context(), uid, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// UpdateSubscription обрабатывает POST /api/subscription.
func (h *UserHandler) UpdateSubscription(c *gin.Context) {
	var req dto.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	sub, err := h.subscriptions.Update(c.Request.Context(), middleware.CallerUID(c), subscription.Action(req.Action), req.Waived)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// Unregister обрабатывает POST /api/unregister.
func (h *UserHandler) Unregister(c *gin.Context) {
	if err := h.users.Unregister(c.Request.Context(), middleware.CallerUID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func clientContext(c *gin.Context) registrar.ClientContext {
	return registrar.ClientContext{
		UserAgent: c.GetHeader("User-Agent"),
		IPAddress: c.ClientIP(),
	}
}
