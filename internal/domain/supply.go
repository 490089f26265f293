package domain

import "time"

// SupplyBatch — партия поставки владельца. Информационная сущность:
// движок заказов её не потребляет.
type SupplyBatch struct {
	ID                string     `json:"id"`
	OwnerUID          string     `json:"ownerUid"`
	Title             string     `json:"title"`
	Quantity          int        `json:"quantity"`
	RemainingQuantity int        `json:"remainingQuantity"`
	ExpirationAt      *time.Time `json:"expirationAt,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	Status            string     `json:"status"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Announcement — анонс будущего предложения. Публикация превращает его в
// живое Offering и проставляет PublishedOfferingID.
type Announcement struct {
	ID                  string     `json:"id"`
	OwnerUID            string     `json:"ownerUid"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	ScheduledAt         time.Time  `json:"scheduledAt"`
	Notes               string     `json:"notes,omitempty"`
	ShowNotesToStudents bool       `json:"showNotesToStudents"`
	PublishedOfferingID string     `json:"publishedOfferingId,omitempty"`
	PublishedAt         *time.Time `json:"publishedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}
