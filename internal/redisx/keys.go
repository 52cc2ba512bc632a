package redisx

import "time"

const (
	// Checkout idempotency: idem:pos:checkout:{client_key} -> order_id
	KeyIdemCheckout = "idem:pos:checkout:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// ChannelOrders carries a message on every remote order mutation; the
	// sync coordinator subscribes and reloads immediately.
	ChannelOrders = "pos:orders:changed"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
)
