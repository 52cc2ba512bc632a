package kitchen

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdvlite/go-pos-sync.git/internal/pos"
)

func eventMessage(t *testing.T, eventType string, occurredAt time.Time, payload any) kafkago.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	env := pos.Envelope{
		EventID:      "ev-" + eventType + occurredAt.Format("150405.000"),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   occurredAt,
		Producer:     "pos-test",
		Payload:      raw,
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Value: b}
}

func TestBoardLifecycle(t *testing.T) {
	svc := New(nil, "kitchen-test")
	ctx := context.Background()
	base := time.Now().UTC()

	items := []pos.OrderItem{{ProductID: "p1", Name: "Espresso", Qty: 2}}
	require.NoError(t, svc.HandleOrderEvent(ctx, eventMessage(t, pos.EventOrderCreated, base,
		pos.OrderCreatedPayload{OrderID: "o1", OrderNumber: "1", Items: items})))
	require.NoError(t, svc.HandleOrderEvent(ctx, eventMessage(t, pos.EventOrderCreated, base.Add(time.Minute),
		pos.OrderCreatedPayload{OrderID: "o2", OrderNumber: "2"})))

	open := svc.Open()
	require.Len(t, open, 2)
	// oldest first
	assert.Equal(t, "o1", open[0].OrderID)
	require.Len(t, open[0].Items, 1)
	assert.Equal(t, "Espresso", open[0].Items[0].Name)
	assert.Equal(t, 2, open[0].Items[0].Qty)

	// done removes the ticket
	require.NoError(t, svc.HandleOrderEvent(ctx, eventMessage(t, pos.EventKitchenStatus, base.Add(2*time.Minute),
		pos.KitchenStatusPayload{OrderID: "o1", OrderNumber: "1", KitchenStatus: string(pos.KitchenDone)})))
	open = svc.Open()
	require.Len(t, open, 1)
	assert.Equal(t, "o2", open[0].OrderID)

	// back to prep re-queues it
	require.NoError(t, svc.HandleOrderEvent(ctx, eventMessage(t, pos.EventKitchenStatus, base.Add(3*time.Minute),
		pos.KitchenStatusPayload{OrderID: "o1", OrderNumber: "1", KitchenStatus: string(pos.KitchenPending)})))
	assert.Len(t, svc.Open(), 2)

	// cancellation clears it
	require.NoError(t, svc.HandleOrderEvent(ctx, eventMessage(t, pos.EventOrderCancelled, base.Add(4*time.Minute),
		pos.OrderCancelledPayload{OrderID: "o2", OrderNumber: "2"})))
	open = svc.Open()
	require.Len(t, open, 1)
	assert.Equal(t, "o1", open[0].OrderID)
}

func TestBoardKeepsItemsOnRequeue(t *testing.T) {
	svc := New(nil, "kitchen-test")
	ctx := context.Background()
	base := time.Now().UTC()

	items := []pos.OrderItem{{ProductID: "p1", Name: "Espresso", Qty: 1}}
	require.NoError(t, svc.HandleOrderEvent(ctx, eventMessage(t, pos.EventOrderCreated, base,
		pos.OrderCreatedPayload{OrderID: "o1", OrderNumber: "1", Items: items})))

	// prep event carries no items; the board keeps the ones it knows
	require.NoError(t, svc.HandleOrderEvent(ctx, eventMessage(t, pos.EventKitchenStatus, base.Add(time.Minute),
		pos.KitchenStatusPayload{OrderID: "o1", OrderNumber: "1", KitchenStatus: string(pos.KitchenPending)})))

	open := svc.Open()
	require.Len(t, open, 1)
	require.Len(t, open[0].Items, 1)
	assert.Equal(t, "Espresso", open[0].Items[0].Name)
}

func TestBoardRejectsBadEnvelope(t *testing.T) {
	svc := New(nil, "kitchen-test")
	err := svc.HandleOrderEvent(context.Background(), kafkago.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
