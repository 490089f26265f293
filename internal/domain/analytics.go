package domain

// SupplyMetrics — агрегаты по заказам и предложениям владельца.
// Снимок по слабо-консистентным выборкам, без собственных инвариантов.
type SupplyMetrics struct {
	TotalOrders       int   `json:"totalOrders"`
	PendingOrders     int   `json:"pendingOrders"`
	CollectedOrders   int   `json:"collectedOrders"`
	RefundedOrders    int   `json:"refundedOrders"`
	TotalFeesCents    int64 `json:"totalFeesCents"`
	UniqueStudents    int   `json:"uniqueStudents"`
	ActiveOfferings   int   `json:"activeOfferings"`
	UpcomingOfferings int   `json:"upcomingOfferings"`
}
