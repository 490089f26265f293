// Package dto описывает тела запросов и ответов HTTP-слоя. Ответы с
// доменными сущностями сериализуются напрямую из domain-структур.
package dto

// RegisterRequest — тело POST /api/create-user-with-login.
type RegisterRequest struct {
	UID     string `json:"uid" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
	Address string `json:"address"`
	Role    string `json:"role"`
}

// UpdateProfileRequest — тело PATCH /api/user/:uid. nil-поле не трогается.
type UpdateProfileRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
}

// LoginRequest — тело POST /api/login-history.
type LoginRequest struct {
	UID   string `json:"uid" binding:"required"`
	Phone string `json:"phone"`
}

// CheckUserResponse — ответ GET /api/check-user.
type CheckUserResponse struct {
	Exists bool `json:"exists"`
}

// SubscriptionRequest — тело POST /api/subscription.
type SubscriptionRequest struct {
	Action string `json:"action" binding:"required"`
	Waived *bool  `json:"waived"`
}
