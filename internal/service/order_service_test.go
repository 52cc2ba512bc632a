package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdvlite/go-pos-sync.git/internal/cache"
	"github.com/pdvlite/go-pos-sync.git/internal/loyalty"
	"github.com/pdvlite/go-pos-sync.git/internal/pos"
	"github.com/pdvlite/go-pos-sync.git/internal/remote"
	"github.com/pdvlite/go-pos-sync.git/internal/syncx"
)

var errDown = errors.New("connection refused")

// fakeStore is an in-memory remote.Store with an outage switch.
type fakeStore struct {
	mu        sync.Mutex
	down      bool
	products  map[string]pos.Product
	orders    map[string]pos.Order
	customers map[string]pos.Customer
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products:  make(map[string]pos.Product),
		orders:    make(map[string]pos.Order),
		customers: make(map[string]pos.Customer),
	}
}

func (f *fakeStore) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *fakeStore) FetchProducts(context.Context) ([]pos.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errDown
	}
	out := make([]pos.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) UpsertProduct(_ context.Context, p pos.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	f.products[p.ID] = p
	return nil
}

func (f *fakeStore) DeleteProduct(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	delete(f.products, id)
	return nil
}

func (f *fakeStore) FetchOrders(context.Context) ([]pos.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errDown
	}
	out := make([]pos.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStore) FetchPendingOrders(ctx context.Context) ([]pos.Order, error) {
	all, err := f.FetchOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		if o.Status == pos.StatusPendingPayment {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) FetchOrdersByIDs(_ context.Context, ids []string) ([]pos.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errDown
	}
	var out []pos.Order
	for _, id := range ids {
		if o, ok := f.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertOrder(_ context.Context, o pos.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	f.orders[o.ID] = o
	return nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, id string, status pos.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	o, ok := f.orders[id]
	if !ok {
		return remote.ErrNotFound
	}
	o.Status = status
	f.orders[id] = o
	return nil
}

func (f *fakeStore) UpdateKitchenStatus(_ context.Context, id string, ks pos.KitchenStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	o, ok := f.orders[id]
	if !ok {
		return remote.ErrNotFound
	}
	o.KitchenStatus = ks
	f.orders[id] = o
	return nil
}

func (f *fakeStore) NextOrderNumber(_ context.Context, dayStart time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return "", errDown
	}
	max := 0
	for _, o := range f.orders {
		if o.CreatedAt.Before(dayStart) {
			continue
		}
		if n, err := strconv.Atoi(o.OrderNumber); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1), nil
}

func (f *fakeStore) FetchCustomers(context.Context) ([]pos.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errDown
	}
	out := make([]pos.Customer, 0, len(f.customers))
	for _, c := range f.customers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) GetCustomer(_ context.Context, id string) (pos.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return pos.Customer{}, errDown
	}
	c, ok := f.customers[id]
	if !ok {
		return pos.Customer{}, remote.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) GetCustomerByPhone(_ context.Context, phone string) (pos.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return pos.Customer{}, errDown
	}
	for _, c := range f.customers {
		if c.Phone == phone {
			return c, nil
		}
	}
	return pos.Customer{}, remote.ErrNotFound
}

func (f *fakeStore) CreateCustomer(_ context.Context, c pos.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	f.customers[c.ID] = c
	return nil
}

func (f *fakeStore) UpdateCustomerPoints(_ context.Context, id string, points int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	c, ok := f.customers[id]
	if !ok {
		return remote.ErrNotFound
	}
	c.Points = points
	f.customers[id] = c
	return nil
}

var _ remote.Store = (*fakeStore)(nil)

func newTestService(t *testing.T, store *fakeStore) *OrderService {
	t.Helper()
	local, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	coord := syncx.New(store, local, nil, time.Second)
	coord.Load(context.Background())

	return &OrderService{
		Coord:  coord,
		Store:  store,
		Ledger: loyalty.NewLedger(store),
		Name:   "pos-test",
	}
}

func seedCatalog(store *fakeStore) {
	store.products["espresso"] = pos.Product{
		ID: "espresso", Name: "Espresso", Price: decimal.RequireFromString("5.00"),
		Stock: pos.BoundedStock(5), Available: true,
	}
	store.products["drip"] = pos.Product{
		ID: "drip", Name: "Drip", Price: decimal.RequireFromString("3.50"),
		Stock: pos.Unbounded(), Available: true,
	}
}

func TestCheckoutOpenOrder(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(t, store)

	o, err := svc.Checkout(context.Background(), CheckoutInput{
		Items:    []CheckoutItem{{ProductID: "espresso", Qty: 2}},
		Discount: decimal.RequireFromString("2.00"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, "1", o.OrderNumber)
	assert.Equal(t, pos.StatusPendingPayment, o.Status)
	assert.Equal(t, pos.PaymentPending, o.PaymentMethod)
	assert.True(t, o.Subtotal.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, o.Total.Equal(decimal.RequireFromString("8.00")))

	// persisted remotely, no sync flag
	store.mu.Lock()
	saved, ok := store.orders[o.ID]
	store.mu.Unlock()
	require.True(t, ok)
	assert.False(t, saved.NeedsSync)
}

func TestCheckoutSequentialNumbers(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(t, store)

	for i := 1; i <= 3; i++ {
		o, err := svc.Checkout(context.Background(), CheckoutInput{
			Items: []CheckoutItem{{ProductID: "drip", Qty: 1}},
		})
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(i), o.OrderNumber)
	}
}

func TestCheckoutCashConfirmsAndEarnsPoints(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	store.customers["c1"] = pos.Customer{ID: "c1", Phone: "55119999", Name: "Ana"}
	svc := newTestService(t, store)

	o, err := svc.Checkout(context.Background(), CheckoutInput{
		Items:         []CheckoutItem{{ProductID: "espresso", Qty: 2}},
		Discount:      decimal.RequireFromString("2.00"),
		PaymentMethod: pos.PaymentCash,
		CustomerID:    "c1",
		SellerName:    "bia",
	})
	require.NoError(t, err)

	assert.Equal(t, pos.StatusCompleted, o.Status)
	assert.Equal(t, pos.KitchenPending, o.KitchenStatus)
	assert.Equal(t, int64(800), o.PointsEarned)

	c, err := store.GetCustomer(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(800), c.Points)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(t, store)

	// two lines for the same product are validated together
	_, err := svc.Checkout(context.Background(), CheckoutInput{
		Items: []CheckoutItem{
			{ProductID: "espresso", Qty: 3},
			{ProductID: "espresso", Qty: 3},
		},
	})
	assert.ErrorIs(t, err, pos.ErrInsufficientStock)
}

func TestCheckoutUnknownProduct(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(t, store)

	_, err := svc.Checkout(context.Background(), CheckoutInput{
		Items: []CheckoutItem{{ProductID: "ghost", Qty: 1}},
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCheckoutPointsPayment(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	store.customers["c1"] = pos.Customer{ID: "c1", Points: 1000}
	svc := newTestService(t, store)

	o, err := svc.Checkout(context.Background(), CheckoutInput{
		Items:         []CheckoutItem{{ProductID: "espresso", Qty: 2}}, // 10.00 -> 1000 pts
		PaymentMethod: pos.PaymentPoints,
		CustomerID:    "c1",
	})
	require.NoError(t, err)

	assert.Equal(t, pos.StatusCompleted, o.Status)
	assert.Equal(t, int64(1000), o.PointsRedeemed)
	assert.Zero(t, o.PointsEarned)

	c, _ := store.GetCustomer(context.Background(), "c1")
	assert.Zero(t, c.Points)
}

func TestCheckoutPointsPaymentGuards(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	store.customers["c1"] = pos.Customer{ID: "c1", Points: 100}
	svc := newTestService(t, store)

	_, err := svc.Checkout(context.Background(), CheckoutInput{
		Items:         []CheckoutItem{{ProductID: "espresso", Qty: 1}},
		PaymentMethod: pos.PaymentPoints,
	})
	assert.ErrorIs(t, err, ErrCustomerRequired)

	_, err = svc.Checkout(context.Background(), CheckoutInput{
		Items:         []CheckoutItem{{ProductID: "espresso", Qty: 1}}, // 500 pts > 100
		PaymentMethod: pos.PaymentPoints,
		CustomerID:    "c1",
	})
	assert.ErrorIs(t, err, loyalty.ErrInsufficientPoints)
}

func TestConfirmPaymentLater(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	store.customers["c1"] = pos.Customer{ID: "c1"}
	svc := newTestService(t, store)

	o, err := svc.Checkout(context.Background(), CheckoutInput{
		Items:      []CheckoutItem{{ProductID: "drip", Qty: 2}}, // 7.00
		CustomerID: "c1",
	})
	require.NoError(t, err)
	require.Equal(t, pos.StatusPendingPayment, o.Status)

	got, err := svc.ConfirmPayment(context.Background(), o.ID, pos.PaymentCard, "ana")
	require.NoError(t, err)
	assert.Equal(t, pos.StatusCompleted, got.Status)
	assert.Equal(t, pos.PaymentCard, got.PaymentMethod)
	assert.Equal(t, int64(700), got.PointsEarned)

	// double confirm conflicts
	_, err = svc.ConfirmPayment(context.Background(), o.ID, pos.PaymentCash, "ana")
	assert.ErrorIs(t, err, pos.ErrInvalidTransition)
}

func TestCancelAndKitchenFlow(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(t, store)

	o, err := svc.Checkout(context.Background(), CheckoutInput{
		Items:         []CheckoutItem{{ProductID: "drip", Qty: 1}},
		PaymentMethod: pos.PaymentCash,
	})
	require.NoError(t, err)

	done, err := svc.MarkKitchenDone(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.KitchenDone, done.KitchenStatus)

	prep, err := svc.ReturnToPrep(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.KitchenPending, prep.KitchenStatus)

	cancelled, err := svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.StatusCancelled, cancelled.Status)

	_, err = svc.MarkKitchenDone(context.Background(), o.ID)
	assert.ErrorIs(t, err, pos.ErrOrderCancelled)

	_, err = svc.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCheckoutOffline(t *testing.T) {
	store := newFakeStore()
	seedCatalog(store)
	svc := newTestService(t, store)
	require.Equal(t, syncx.ConnOnline, svc.Coord.State())

	store.setDown(true)
	_ = svc.Coord.Refresh(context.Background())

	o, err := svc.Checkout(context.Background(), CheckoutInput{
		Items: []CheckoutItem{{ProductID: "espresso", Qty: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", o.OrderNumber)
	assert.Equal(t, syncx.ConnDegraded, svc.Coord.State())

	got, ok := svc.Coord.Order(o.ID)
	require.True(t, ok)
	assert.True(t, got.NeedsSync)

	// remote never saw the order during the outage
	store.mu.Lock()
	assert.Empty(t, store.orders)
	store.mu.Unlock()

	// reconnect: the next cycle pushes it
	store.setDown(false)
	require.NoError(t, svc.Coord.Refresh(context.Background()))
	assert.Equal(t, syncx.ConnOnline, svc.Coord.State())

	store.mu.Lock()
	pushed, ok := store.orders[o.ID]
	store.mu.Unlock()
	require.True(t, ok)
	assert.False(t, pushed.NeedsSync)
}

func TestLookupCustomerLazyCreate(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)

	_, err := svc.LookupCustomer(context.Background(), "55119999", "")
	assert.ErrorIs(t, err, ErrCustomerNameRequired)

	created, err := svc.LookupCustomer(context.Background(), "55119999", "Ana")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Ana", created.Name)

	// second lookup finds the same account, no name needed
	found, err := svc.LookupCustomer(context.Background(), "55119999", "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
}

func TestRedeemAndAddPoints(t *testing.T) {
	store := newFakeStore()
	store.customers["c1"] = pos.Customer{ID: "c1", Points: 500}
	svc := newTestService(t, store)

	balance, err := svc.AddPoints(context.Background(), "c1", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(800), balance)

	balance, err = svc.RedeemPoints(context.Background(), "c1", 800)
	require.NoError(t, err)
	assert.Zero(t, balance)

	_, err = svc.RedeemPoints(context.Background(), "c1", 1)
	assert.ErrorIs(t, err, loyalty.ErrInsufficientPoints)
}
