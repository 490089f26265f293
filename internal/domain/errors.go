package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound возвращается, если пользователь не найден в хранилище.
	ErrUserNotFound = errors.New("user not found")
	// ErrOfferingNotFound возвращается, если предложение не найдено.
	ErrOfferingNotFound = errors.New("offering not found")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAnnouncementNotFound возвращается, если анонс будущего предложения не найден.
	ErrAnnouncementNotFound = errors.New("announcement not found")
	// ErrQRCodeNotFound возвращается, если QR-токен не соответствует ни одному заказу.
	ErrQRCodeNotFound = errors.New("qr code not found")
	// ErrBatchNotFound возвращается, если партия поставки не найдена.
	ErrBatchNotFound = errors.New("supply batch not found")
	// ErrSoldOut — предложение исчерпано либо недоступно для резервирования.
	ErrSoldOut = errors.New("offering is sold out")
	// ErrAlreadyCollected — заказ уже выдан; повторная валидация не меняет состояние.
	ErrAlreadyCollected = errors.New("order already collected")
	// ErrOrderTerminal — заказ в терминальном статусе, переходы из него запрещены.
	ErrOrderTerminal = errors.New("order is in terminal state")
	// ErrForbidden — операция над чужой сущностью.
	ErrForbidden = errors.New("entity does not belong to this user")
	// ErrUnavailable — транзакция не зафиксировалась после повторов; вызов можно повторить.
	ErrUnavailable = errors.New("storage is temporarily unavailable, retry")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже зарегистрирован; ответ нужно брать из кеша.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound — записи с таким ключом нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch — тот же ключ использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key is already used with different request payload")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ConflictError сообщает, какое поле уникальности уже занято: "phone",
// "email" либо "uid".
type ConflictError struct {
	Field string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s already registered", e.Field)
}

// IsConflict проверяет, является ли ошибка конфликтом уникальности.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// ValidationError описывает некорректное входное поле.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation проверяет, является ли ошибка ошибкой валидации входных данных.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
