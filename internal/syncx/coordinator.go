package syncx

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdvlite/go-pos-sync.git/internal/cache"
	"github.com/pdvlite/go-pos-sync.git/internal/pos"
	"github.com/pdvlite/go-pos-sync.git/internal/redisx"
)

// Remote is the slice of the remote store the coordinator needs. Narrow so
// tests can fake outages without a network.
type Remote interface {
	FetchProducts(ctx context.Context) ([]pos.Product, error)
	FetchOrders(ctx context.Context) ([]pos.Order, error)
	FetchCustomers(ctx context.Context) ([]pos.Customer, error)
	UpsertOrder(ctx context.Context, o pos.Order) error
}

// errNoRemote stands in for the remote store when the terminal booted
// without a reachable Postgres; every cycle then runs the offline path.
var errNoRemote = errors.New("remote store not configured")

// Snapshot is the point-in-time view served to every UI surface.
type Snapshot struct {
	Orders    []pos.Order
	Products  []pos.Product
	Customers []pos.Customer
}

// Coordinator owns the authoritative in-memory view of orders, products and
// customers. It refreshes from three inputs: an initial full load, a fixed
// interval poll, and a redis pub/sub message on any remote order mutation.
// On remote failure it serves the local cache and pushes locally-only
// records back once the remote answers again.
type Coordinator struct {
	remote   Remote
	cache    *cache.Store
	rdb      *redis.Client // optional; nil disables pub/sub
	interval time.Duration

	mu    sync.RWMutex
	snap  Snapshot
	state Connectivity

	subsMu sync.Mutex
	subs   []func(Snapshot)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(remote Remote, store *cache.Store, rdb *redis.Client, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Coordinator{
		remote:   remote,
		cache:    store,
		rdb:      rdb,
		interval: interval,
		state:    ConnOffline,
	}
}

// OnUpdate registers a callback invoked after every republish (poll,
// pub/sub reload, or local commit). Callbacks must not block.
func (c *Coordinator) OnUpdate(fn func(Snapshot)) {
	c.subsMu.Lock()
	c.subs = append(c.subs, fn)
	c.subsMu.Unlock()
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Coordinator) State() Connectivity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Catalog returns the product set keyed by id, the shape the stock engine
// consumes.
func (c *Coordinator) Catalog() map[string]pos.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := make(map[string]pos.Product, len(c.snap.Products))
	for _, p := range c.snap.Products {
		m[p.ID] = p
	}
	return m
}

func (c *Coordinator) Order(id string) (pos.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, o := range c.snap.Orders {
		if o.ID == id {
			return o, true
		}
	}
	return pos.Order{}, false
}

// Load performs the initial full load. An unreachable remote is not fatal;
// the coordinator comes up serving the cache.
func (c *Coordinator) Load(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		log.Printf("initial load from remote failed, serving cache: %v", err)
	}
}

// Start launches the fixed-interval poller and, when redis is configured,
// the change-notification subscription. Stop with Stop.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := c.Refresh(ctx); err != nil {
					log.Printf("poll refresh: %v", err)
				}
			}
		}
	}()

	if c.rdb != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			sub := c.rdb.Subscribe(ctx, redisx.ChannelOrders)
			defer sub.Close()
			ch := sub.Channel()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					if err := c.Refresh(ctx); err != nil {
						log.Printf("notified refresh: %v", err)
					}
				}
			}
		}()
	}
}

func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Refresh runs one reconcile cycle: pull the remote sets, push any
// locally-only orders, mirror the result to the cache and republish. On
// remote failure the cache snapshot is served instead and the returned
// error carries the cause.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if c.remote == nil {
		return c.fallback(errNoRemote)
	}
	orders, err := c.remote.FetchOrders(ctx)
	if err != nil {
		return c.fallback(fmt.Errorf("fetch orders: %w", err))
	}
	products, err := c.remote.FetchProducts(ctx)
	if err != nil {
		return c.fallback(fmt.Errorf("fetch products: %w", err))
	}
	customers, err := c.remote.FetchCustomers(ctx)
	if err != nil {
		return c.fallback(fmt.Errorf("fetch customers: %w", err))
	}

	cached, cacheErr := c.cache.LoadOrders()
	if cacheErr != nil {
		log.Printf("cache read: %v", cacheErr)
	}

	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		seen[o.ID] = true
	}

	// Push every record the remote has never confirmed. Upserts are keyed
	// by the order's own id, so a re-send is harmless.
	pushFailed := false
	for _, o := range cached {
		if !o.NeedsSync {
			continue
		}
		o.NeedsSync = false
		if err := c.remote.UpsertOrder(ctx, o); err != nil {
			log.Printf("push order %s: %v", o.ID, err)
			o.NeedsSync = true
			pushFailed = true
		}
		if !seen[o.ID] {
			orders = append(orders, o)
			seen[o.ID] = true
		}
	}

	// Remote answered but with nothing while the cache has history: prefer
	// the larger set rather than wiping local state.
	if len(orders) == 0 && len(cached) > 0 {
		orders = cached
	}

	if err := c.cache.SaveOrders(orders); err != nil {
		log.Printf("cache orders: %v", err)
	}
	if err := c.cache.SaveProducts(products); err != nil {
		log.Printf("cache products: %v", err)
	}
	if err := c.cache.SaveCustomers(customers); err != nil {
		log.Printf("cache customers: %v", err)
	}

	state := ConnOnline
	if pushFailed {
		state = ConnDegraded
	}
	c.publish(Snapshot{Orders: orders, Products: products, Customers: customers}, state)
	return nil
}

// fallback serves the most recent cache snapshot after a remote failure.
func (c *Coordinator) fallback(cause error) error {
	orders, _ := c.cache.LoadOrders()
	products, _ := c.cache.LoadProducts()
	customers, _ := c.cache.LoadCustomers()

	state := ConnOffline
	if len(orders) > 0 || len(products) > 0 {
		state = ConnDegraded
	}
	c.publish(Snapshot{Orders: orders, Products: products, Customers: customers}, state)
	return cause
}

// CommitOrder persists an order remotely-then-locally. A failed remote
// write still commits the order to the cache and snapshot, flagged
// NeedsSync and retried on the next poll cycle; only a local cache failure
// is returned as an error.
func (c *Coordinator) CommitOrder(ctx context.Context, o pos.Order) error {
	o.NeedsSync = false
	remoteErr := errNoRemote
	if c.remote != nil {
		remoteErr = c.remote.UpsertOrder(ctx, o)
	}
	if remoteErr != nil {
		log.Printf("remote write for order %s failed, committing locally: %v", o.ID, remoteErr)
		o.NeedsSync = true
	}

	c.mu.Lock()
	replaced := false
	for i := range c.snap.Orders {
		if c.snap.Orders[i].ID == o.ID {
			c.snap.Orders[i] = o
			replaced = true
			break
		}
	}
	if !replaced {
		c.snap.Orders = append([]pos.Order{o}, c.snap.Orders...)
	}
	orders := c.snap.Orders
	c.mu.Unlock()

	if err := c.cache.SaveOrders(orders); err != nil {
		return fmt.Errorf("cache write for order %s: %w", o.ID, err)
	}

	if remoteErr != nil {
		c.setState(ConnDegraded)
	} else {
		c.setState(ConnOnline)
		if c.rdb != nil {
			_ = c.rdb.Publish(ctx, redisx.ChannelOrders, o.ID).Err()
		}
	}
	c.notify()
	return nil
}

func (c *Coordinator) publish(s Snapshot, state Connectivity) {
	c.mu.Lock()
	c.snap = s
	prev := c.state
	c.state = state
	c.mu.Unlock()
	if prev != state {
		log.Printf("connectivity: %s -> %s", prev, state)
	}
	c.notify()
}

func (c *Coordinator) setState(state Connectivity) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()
	if prev != state {
		log.Printf("connectivity: %s -> %s", prev, state)
	}
}

func (c *Coordinator) notify() {
	snap := c.Snapshot()
	c.subsMu.Lock()
	subs := make([]func(Snapshot), len(c.subs))
	copy(subs, c.subs)
	c.subsMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
