package domain

import "time"

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type OrderPlaced struct {
	OrderID         int64      `json:"order_id"`
	CustomerID      string     `json:"customer_id"`
	DeliveryAddress string     `json:"delivery_address"`
	PartySize       int        `json:"party_size"`
	Items           []LineItem `json:"items"`
	PlacedAt        time.Time  `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID   int64       `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	ChangedAt time.Time   `json:"changed_at"`
}
