package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/fjod/go_storefront/pkg/cart"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/shopapi"
)

const (
	CartTopic  = "storefront.cart-events"
	OrderTopic = "storefront.orders"

	EventOrderPlaced = "order_placed"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher queues storefront events and ships them to Kafka from Run.
// Notify and OrderPlaced only enqueue.
type Publisher struct {
	writer    MessageWriter
	outbox    *outbox
	tick      time.Duration
	batchSize int
	log       *slog.Logger
	now       func() time.Time
}

func NewPublisher(brokers []string, log *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return NewPublisherWithWriter(w, log)
}

func NewPublisherWithWriter(w MessageWriter, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		writer:    w,
		outbox:    newOutbox(10_000),
		tick:      time.Second,
		batchSize: 100,
		log:       log,
		now:       time.Now,
	}
}

type cartMessage struct {
	EventID string `json:"event_id"`
	cart.Event
}

// Notify implements cart.Notifier.
func (p *Publisher) Notify(ctx context.Context, e cart.Event) {
	body, err := json.Marshal(cartMessage{EventID: uuid.NewString(), Event: e})
	if err != nil {
		logger.FromContext(ctx).Error("encode cart event", slog.Any("error", err))
		return
	}
	p.outbox.add(kafka.Message{
		Topic: CartTopic,
		Key:   []byte(e.Owner),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
}

type orderMessage struct {
	EventID    string          `json:"event_id"`
	Type       string          `json:"type"`
	Owner      string          `json:"owner"`
	Order      shopapi.Order   `json:"order"`
	Payment    shopapi.Payment `json:"payment"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func (p *Publisher) OrderPlaced(ctx context.Context, owner string, o shopapi.Order, pay shopapi.Payment) {
	body, err := json.Marshal(orderMessage{
		EventID:    uuid.NewString(),
		Type:       EventOrderPlaced,
		Owner:      owner,
		Order:      o,
		Payment:    pay,
		OccurredAt: p.now(),
	})
	if err != nil {
		logger.FromContext(ctx).Error("encode order event", slog.Any("error", err))
		return
	}
	p.outbox.add(kafka.Message{
		Topic: OrderTopic,
		Key:   []byte(owner),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderPlaced)},
		},
	})
}

// Run flushes the outbox every tick until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Flush writes queued messages in batches. A failed batch goes back to the outbox
// and the flush stops until the next tick.
func (p *Publisher) Flush(ctx context.Context) int {
	sent := 0
	for {
		batch := p.outbox.take(p.batchSize)
		if len(batch) == 0 {
			return sent
		}
		if err := p.writer.WriteMessages(ctx, batch...); err != nil {
			p.outbox.requeue(batch)
			p.log.Warn("failed to publish events", slog.Int("batch", len(batch)), slog.Any("error", err))
			return sent
		}
		sent += len(batch)
	}
}

func (p *Publisher) Pending() int { return p.outbox.len() }

// Close makes a last flush attempt and closes the writer.
func (p *Publisher) Close(ctx context.Context) error {
	p.Flush(ctx)
	if n := p.outbox.len(); n > 0 {
		p.log.Warn("dropping unpublished events", slog.Int("count", n))
	}
	return p.writer.Close()
}
