package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/pdvlite/go-pos-sync.git/internal/kafka"
	"github.com/pdvlite/go-pos-sync.git/internal/loyalty"
	"github.com/pdvlite/go-pos-sync.git/internal/pos"
	"github.com/pdvlite/go-pos-sync.git/internal/redisx"
	"github.com/pdvlite/go-pos-sync.git/internal/remote"
	"github.com/pdvlite/go-pos-sync.git/internal/syncx"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrCustomerRequired     = errors.New("customer required for points payment")
	ErrCustomerNameRequired = errors.New("customer name is required")

	// Loyalty balances live on the remote store only; without it, points
	// operations are refused rather than guessed.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)

// EventBus is what the service needs from the kafka bus; nil-able in tests.
type EventBus interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// OrderService drives the order lifecycle: checkout, payment confirmation,
// cancellation and kitchen workflow. Every mutation persists through the
// sync coordinator (remote-then-local, or local-only when offline) and
// emits a lifecycle event.
type OrderService struct {
	Coord  *syncx.Coordinator
	Store  remote.Store
	Ledger *loyalty.Ledger
	Bus    EventBus      // optional
	Redis  *redis.Client // optional, checkout idempotency fast path
	Name   string        // producer name stamped on event envelopes
}

type CheckoutItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
	Note      string `json:"note"`
}

type CheckoutInput struct {
	OrderID       string            `json:"order_id"`   // client-generated; assigned when empty
	ClientKey     string            `json:"client_key"` // idempotency key from the device
	Items         []CheckoutItem    `json:"items" validate:"required,min=1,dive"`
	Discount      decimal.Decimal   `json:"discount"`
	PaymentMethod pos.PaymentMethod `json:"payment_method"`
	CustomerID    string            `json:"customer_id"`
	SellerName    string            `json:"seller_name"`
}

// Checkout validates stock against the current snapshot, allocates an order
// number, creates the order and, when a concrete payment method is given,
// confirms payment in the same step (the cashier flow). Works offline: the
// order lands in the cache flagged for sync.
func (s *OrderService) Checkout(ctx context.Context, in CheckoutInput) (pos.Order, error) {
	now := time.Now()

	if s.Redis != nil && in.ClientKey != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, in.ClientKey)
		if id, err := s.Redis.Get(ctx, idemKey).Result(); err == nil && id != "" {
			if o, ok := s.Coord.Order(id); ok {
				return o, nil
			}
		}
	}

	catalog := s.Coord.Catalog()

	// Re-validate the whole requested quantity per product, not per line.
	perProduct := map[string]int{}
	for _, it := range in.Items {
		perProduct[it.ProductID] += it.Qty
	}
	for id, qty := range perProduct {
		p, ok := catalog[id]
		if !ok {
			return pos.Order{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		if err := pos.CheckQuantity(p, catalog, qty); err != nil {
			return pos.Order{}, err
		}
	}

	items := make([]pos.OrderItem, 0, len(in.Items))
	subtotal := decimal.Zero
	for _, it := range in.Items {
		p := catalog[it.ProductID]
		items = append(items, pos.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Qty:       it.Qty,
			Note:      it.Note,
		})
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
	}

	o := pos.Order{
		ID:            in.OrderID,
		OrderNumber:   s.nextOrderNumber(ctx, now),
		CreatedAt:     now,
		Items:         items,
		Subtotal:      subtotal,
		Discount:      in.Discount,
		PaymentMethod: pos.PaymentPending,
		Status:        pos.StatusPendingPayment,
		KitchenStatus: pos.KitchenPending,
		CustomerID:    in.CustomerID,
		UpdatedAt:     now,
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.ComputeTotal()

	switch in.PaymentMethod {
	case pos.PaymentPending, "":
		// stays open until confirmPayment
	case pos.PaymentPoints:
		if in.CustomerID == "" {
			return pos.Order{}, ErrCustomerRequired
		}
		if s.Store == nil {
			return pos.Order{}, ErrRemoteUnavailable
		}
		pts := loyalty.PointsForTotal(o.Total)
		if _, err := s.Ledger.Redeem(ctx, in.CustomerID, pts); err != nil {
			return pos.Order{}, err
		}
		o.PointsRedeemed = pts
		if err := o.ConfirmPayment(pos.PaymentPoints, in.SellerName, now); err != nil {
			return pos.Order{}, err
		}
	default:
		if err := o.ConfirmPayment(in.PaymentMethod, in.SellerName, now); err != nil {
			return pos.Order{}, err
		}
		s.earnPoints(ctx, &o)
	}

	if err := s.Coord.CommitOrder(ctx, o); err != nil {
		return pos.Order{}, err
	}

	if s.Redis != nil && in.ClientKey != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemCheckout, in.ClientKey)
		_ = s.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	}

	s.emit(pos.TopicOrderCreated, pos.EventOrderCreated, o.ID, pos.OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Items:       o.Items,
		Total:       o.Total.StringFixed(2),
		CustomerID:  o.CustomerID,
	})
	if o.Status == pos.StatusCompleted {
		s.emitPaid(o)
	}
	return o, nil
}

// ConfirmPayment completes an open order: pending_payment -> completed,
// kitchen work starts, loyalty points are earned exactly once here.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string, method pos.PaymentMethod, seller string) (pos.Order, error) {
	o, ok := s.Coord.Order(orderID)
	if !ok {
		return pos.Order{}, ErrOrderNotFound
	}
	if err := o.ConfirmPayment(method, seller, time.Now()); err != nil {
		return pos.Order{}, err
	}
	s.earnPoints(ctx, &o)
	if err := s.Coord.CommitOrder(ctx, o); err != nil {
		return pos.Order{}, err
	}
	s.emitPaid(o)
	return o, nil
}

// Cancel soft-deletes the order; terminal and one-way. KitchenStatus is
// left as an audit trail of how far preparation had progressed.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (pos.Order, error) {
	o, ok := s.Coord.Order(orderID)
	if !ok {
		return pos.Order{}, ErrOrderNotFound
	}
	if err := o.Cancel(time.Now()); err != nil {
		return pos.Order{}, err
	}
	if err := s.Coord.CommitOrder(ctx, o); err != nil {
		return pos.Order{}, err
	}
	s.emit(pos.TopicOrderCancelled, pos.EventOrderCancelled, o.ID, pos.OrderCancelledPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
	})
	return o, nil
}

func (s *OrderService) MarkKitchenDone(ctx context.Context, orderID string) (pos.Order, error) {
	return s.setKitchen(ctx, orderID, (*pos.Order).MarkKitchenDone)
}

func (s *OrderService) ReturnToPrep(ctx context.Context, orderID string) (pos.Order, error) {
	return s.setKitchen(ctx, orderID, (*pos.Order).ReturnToPrep)
}

func (s *OrderService) setKitchen(ctx context.Context, orderID string, apply func(*pos.Order, time.Time) error) (pos.Order, error) {
	o, ok := s.Coord.Order(orderID)
	if !ok {
		return pos.Order{}, ErrOrderNotFound
	}
	if err := apply(&o, time.Now()); err != nil {
		return pos.Order{}, err
	}
	if err := s.Coord.CommitOrder(ctx, o); err != nil {
		return pos.Order{}, err
	}
	s.emit(pos.TopicKitchenStatus, pos.EventKitchenStatus, o.ID, pos.KitchenStatusPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		KitchenStatus: string(o.KitchenStatus),
	})
	return o, nil
}

// LookupCustomer finds a loyalty account by phone, creating it lazily on
// first contact. Name is required only when the account does not exist yet.
func (s *OrderService) LookupCustomer(ctx context.Context, phone, name string) (pos.Customer, error) {
	if s.Store == nil {
		return pos.Customer{}, ErrRemoteUnavailable
	}
	c, err := s.Store.GetCustomerByPhone(ctx, phone)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return pos.Customer{}, err
	}
	if name == "" {
		return pos.Customer{}, ErrCustomerNameRequired
	}
	now := time.Now()
	c = pos.Customer{
		ID:        uuid.NewString(),
		Phone:     phone,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateCustomer(ctx, c); err != nil {
		return pos.Customer{}, err
	}
	return c, nil
}

func (s *OrderService) RedeemPoints(ctx context.Context, customerID string, points int64) (int64, error) {
	if s.Store == nil {
		return 0, ErrRemoteUnavailable
	}
	return s.Ledger.Redeem(ctx, customerID, points)
}

func (s *OrderService) AddPoints(ctx context.Context, customerID string, points int64) (int64, error) {
	if s.Store == nil {
		return 0, ErrRemoteUnavailable
	}
	return s.Ledger.Earn(ctx, customerID, points)
}

// earnPoints credits floor(total * 100) to the order's customer. A failure
// here (remote down) does not roll the payment back; it is logged and the
// degraded indicator covers it.
func (s *OrderService) earnPoints(ctx context.Context, o *pos.Order) {
	if o.CustomerID == "" || s.Store == nil {
		return
	}
	pts := loyalty.PointsForTotal(o.Total)
	if pts <= 0 {
		return
	}
	if _, err := s.Ledger.Earn(ctx, o.CustomerID, pts); err != nil {
		log.Printf("loyalty earn for order %s: %v", o.ID, err)
		return
	}
	o.PointsEarned = pts
}

// nextOrderNumber asks the remote store when online (narrower race window),
// otherwise computes from the snapshot and accepts a possible collision.
func (s *OrderService) nextOrderNumber(ctx context.Context, now time.Time) string {
	if s.Coord.State() == syncx.ConnOnline && s.Store != nil {
		if n, err := s.Store.NextOrderNumber(ctx, pos.StartOfDay(now)); err == nil {
			return n
		} else {
			log.Printf("remote order number: %v", err)
		}
	}
	return pos.NextNumber(s.Coord.Snapshot().Orders, now)
}

func (s *OrderService) emitPaid(o pos.Order) {
	s.emit(pos.TopicOrderPaid, pos.EventOrderPaid, o.ID, pos.OrderPaidPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		PaymentMethod: string(o.PaymentMethod),
		Total:         o.Total.StringFixed(2),
		PointsEarned:  o.PointsEarned,
		SellerName:    o.SellerName,
	})
}

func (s *OrderService) emit(topic, eventType, orderID string, payload any) {
	if s.Bus == nil {
		return
	}
	ev := pos.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Name,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Bus.Publish(topic, pos.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
