package kafka

import (
	"context"
	"github.com/segmentio/kafka-go"
	"time"
)

// Bus publishes to several topics over one async writer with a buffered
// inbox; the POS api emits all lifecycle topics through a single bus.
// Start launches the flush loop, Close drains it, WaitClosed blocks until
// the writer has shut down.
type Bus struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewBus(brokers []string, buf int) *Bus {
	return &Bus{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (b *Bus) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(b.inbox)
				for m := range b.inbox {
					_ = b.w.WriteMessages(context.Background(), m)
				}
				_ = b.w.Close()
				close(b.closeCh)
				return
			case m, ok := <-b.inbox:
				if !ok {
					_ = b.w.Close()
					close(b.closeCh)
					return
				}
				_ = b.w.WriteMessages(context.Background(), m)
			}
		}
	}()
}

func (b *Bus) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	b.inbox <- kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

func (b *Bus) Close() { close(b.inbox) }

func (b *Bus) WaitClosed() { <-b.closeCh }
