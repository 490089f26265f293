package domain

// Имена коллекций документного хранилища. Маркеры уникальности ключуются
// самим нормализованным значением — создание документа с занятым ключом и
// есть сигнал конфликта.
const (
	CollectionUsers         = "users"
	CollectionPhoneMarkers  = "users_by_phone"
	CollectionEmailMarkers  = "users_by_email"
	CollectionLoginHistory  = "loginHistory"
	CollectionOfferings     = "offerings"
	CollectionOrders        = "orders"
	CollectionSupplyBatches = "supplyBatches"
	CollectionAnnouncements = "futureOfferings"
	CollectionQRCodes       = "qrCodes"
	CollectionOutbox        = "outbox"
	CollectionIdempotency   = "idempotency"
)
