package pos

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderCancelled = "OrderCancelled"
	EventKitchenStatus  = "KitchenStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "pos-api"
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload types per event ----

type OrderCreatedPayload struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	Items       []OrderItem `json:"items"`
	Total       string      `json:"total"`
	CustomerID  string      `json:"customer_id,omitempty"`
}

type OrderPaidPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	PaymentMethod string `json:"payment_method"`
	Total         string `json:"total"`
	PointsEarned  int64  `json:"points_earned,omitempty"`
	SellerName    string `json:"seller_name,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

type KitchenStatusPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	KitchenStatus string `json:"kitchen_status"`
}
