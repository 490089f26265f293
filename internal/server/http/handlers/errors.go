package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/server/http/dto"
)

// writeError переводит доменную ошибку в HTTP-статус и единое тело ошибки.
func writeError(c *gin.Context, err error) {
	var (
		conflict   domain.ConflictError
		validation domain.ValidationError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: validation.Error(),
			Field:   validation.Field,
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "conflict",
			Message: conflict.Error(),
			Field:   conflict.Field,
		})
	case errors.Is(err, domain.ErrSoldOut):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "sold_out",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrAlreadyCollected):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "already_collected",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrOrderTerminal):
		c.JSON(http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:   "invalid_state",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error:   "forbidden",
			Message: err.Error(),
		})
	case isNotFound(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "unavailable",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal",
			Message: "internal server error",
		})
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrUserNotFound) ||
		errors.Is(err, domain.ErrOfferingNotFound) ||
		errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrAnnouncementNotFound) ||
		errors.Is(err, domain.ErrQRCodeNotFound) ||
		errors.Is(err, domain.ErrBatchNotFound)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}
