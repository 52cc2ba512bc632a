package pos

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is a tagged quantity: either a finite count or unbounded
// (the product is never stock-gated).
type Stock struct {
	Bounded bool `json:"bounded"`
	Qty     int  `json:"qty"`
}

func BoundedStock(n int) Stock { return Stock{Bounded: true, Qty: n} }
func Unbounded() Stock         { return Stock{} }

// Allows reports whether qty units can be taken from this stock level.
func (s Stock) Allows(qty int) bool {
	if !s.Bounded {
		return true
	}
	return qty <= s.Qty
}

// ComboItem is one constituent of a composite product.
type ComboItem struct {
	ComponentID string `json:"component_id"`
	Quantity    int    `json:"quantity"`
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       Stock           `json:"stock"`
	Available   bool            `json:"available"`
	ComboItems  []ComboItem     `json:"combo_items,omitempty"`
	PointsPrice *int64          `json:"points_price,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsCombo reports whether availability derives from components
// instead of the product's own stock field.
func (p Product) IsCombo() bool { return len(p.ComboItems) > 0 }

// OrderItem is a denormalized snapshot of a product line at checkout time,
// so later catalog edits never corrupt order history.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Qty       int             `json:"qty"`
	Note      string          `json:"note,omitempty"`
}

type PaymentMethod string

const (
	PaymentPending PaymentMethod = "awaiting_payment"
	PaymentCash    PaymentMethod = "cash"
	PaymentCard    PaymentMethod = "card"
	PaymentPix     PaymentMethod = "pix"
	PaymentPoints  PaymentMethod = "loyalty_points"
)

type Order struct {
	ID             string          `json:"id"` // client-generated uuid, globally unique
	OrderNumber    string          `json:"order_number"`
	CreatedAt      time.Time       `json:"created_at"`
	Items          []OrderItem     `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	Status         Status          `json:"status"`
	KitchenStatus  KitchenStatus   `json:"kitchen_status"`
	CustomerID     string          `json:"customer_id,omitempty"`
	PointsEarned   int64           `json:"points_earned,omitempty"`
	PointsRedeemed int64           `json:"points_redeemed,omitempty"`
	SellerName     string          `json:"seller_name,omitempty"`
	NeedsSync      bool            `json:"needs_sync,omitempty"` // true until the remote store confirmed this record
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ComputeTotal enforces total = max(0, subtotal - discount).
func (o *Order) ComputeTotal() {
	t := o.Subtotal.Sub(o.Discount)
	if t.IsNegative() {
		t = decimal.Zero
	}
	o.Total = t
}

type Customer struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"` // unique natural key
	Name      string    `json:"name"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
