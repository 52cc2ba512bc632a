package kitchen

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/pdvlite/go-pos-sync.git/internal/kafka"
	"github.com/pdvlite/go-pos-sync.git/internal/pos"
	"github.com/pdvlite/go-pos-sync.git/internal/redisx"
)

// Ticket is one line on the kitchen board.
type Ticket struct {
	OrderID     string          `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Items       []pos.OrderItem `json:"items,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// Service consumes order lifecycle events and keeps the board of tickets
// still in preparation. Installed as the kafka consumer handler.
type Service struct {
	Redis       *redis.Client
	ServiceName string

	mu      sync.Mutex
	tickets map[string]Ticket
}

func New(rdb *redis.Client, name string) *Service {
	return &Service{Redis: rdb, ServiceName: name, tickets: make(map[string]Ticket)}
}

func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env pos.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup via redis on event id
	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "kitchen", env.EventID)
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	switch env.EventType {
	case pos.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[pos.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.add(Ticket{OrderID: p.OrderID, OrderNumber: p.OrderNumber, Items: p.Items, ReceivedAt: env.OccurredAt})
		log.Printf("board: order #%s queued (%d items)", p.OrderNumber, len(p.Items))

	case pos.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[pos.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		s.remove(p.OrderID)
		log.Printf("board: order #%s cancelled", p.OrderNumber)

	case pos.EventKitchenStatus:
		p, err := kafkax.UnwrapPayload[pos.KitchenStatusPayload](env.Payload)
		if err != nil {
			return err
		}
		if p.KitchenStatus == string(pos.KitchenDone) {
			s.remove(p.OrderID)
			log.Printf("board: order #%s done", p.OrderNumber)
		} else {
			// back to prep: re-queue without items (paid event carries none)
			s.add(Ticket{OrderID: p.OrderID, OrderNumber: p.OrderNumber, ReceivedAt: env.OccurredAt})
			log.Printf("board: order #%s back to prep", p.OrderNumber)
		}
	}
	return nil
}

// Open returns the tickets still in preparation, oldest first.
func (s *Service) Open() []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

func (s *Service) add(t Ticket) {
	s.mu.Lock()
	if old, ok := s.tickets[t.OrderID]; ok && len(t.Items) == 0 {
		t.Items = old.Items
	}
	s.tickets[t.OrderID] = t
	s.mu.Unlock()
}

func (s *Service) remove(orderID string) {
	s.mu.Lock()
	delete(s.tickets, orderID)
	s.mu.Unlock()
}
