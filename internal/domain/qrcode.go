package domain

import "time"

// QRCode — многоразовый код владельца для событий и особых случаев.
// Живёт независимо от жизненного цикла заказов; документ ключуется токеном.
type QRCode struct {
	OwnerUID  string     `json:"ownerUid"`
	QRToken   string     `json:"qrToken"`
	Title     string     `json:"title"`
	Purpose   string     `json:"purpose,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Expired сообщает, истёк ли срок действия кода на момент now.
func (c *QRCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
