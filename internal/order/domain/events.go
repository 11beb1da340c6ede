package domain

type OrderCreated struct {
	OrderID string
	OwnerID string
	Total   int64
	IsGift  bool
	Items   []OrderItem
}

type OrderStatusChanged struct {
	OrderID       string
	OwnerID       string
	Status        Status
	PaymentStatus PaymentStatus
}
