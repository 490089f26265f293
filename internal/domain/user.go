package domain

import (
	"strings"
	"time"
)

// UserRole разделяет студентов и владельцев поставок.
type UserRole string

const (
	// RoleStudent — обычный пользователь, резервирующий предложения.
	RoleStudent UserRole = "student"
	// RoleSupplyOwner — владелец поставок, публикует предложения и выдаёт заказы.
	RoleSupplyOwner UserRole = "supplyOwner"
)

// Subscription хранит состояние ежемесячной подписки пользователя.
type Subscription struct {
	Active          bool       `json:"active"`
	Waived          bool       `json:"waived"`
	MonthlyFeeCents int64      `json:"monthlyFeeCents"`
	RenewsAt        *time.Time `json:"renewsAt,omitempty"`
	ActivatedAt     *time.Time `json:"activatedAt,omitempty"`
}

// User — зарегистрированный пользователь. PhoneNumber неизменяем после
// регистрации; имя, email и адрес редактируются профилем.
type User struct {
	UID          string       `json:"uid"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PhoneNumber  string       `json:"phoneNumber"`
	Address      string       `json:"address"`
	Role         UserRole     `json:"role"`
	Subscription Subscription `json:"subscription"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// UniquenessMarker резервирует нормализованный телефон или email за uid.
// Документ ключуется самим нормализованным значением.
type UniquenessMarker struct {
	UID       string    `json:"uid"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginRecord фиксирует факт входа: кто, когда и откуда.
type LoginRecord struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	PhoneNumber string    `json:"phoneNumber"`
	UserAgent   string    `json:"userAgent"`
	IPAddress   string    `json:"ipAddress"`
	Timestamp   time.Time `json:"timestamp"`
}

// NormalizeEmail приводит email к каноническому виду ключа маркера.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone приводит телефон к каноническому виду ключа маркера.
// E.164 уже каноничен, достаточно убрать пробелы по краям.
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}
