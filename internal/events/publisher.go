// Package events carries committed status and progress changes out of the
// process and projects them into the Redis read model.
package events

import (
	"context"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-warehouse-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// Producer is satisfied by *kafkax.Producer.
type Producer interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

// Publisher turns committed changes into OrderStatusChanged and
// OrderProgressChanged events, keyed by order id.
type Publisher struct {
	Producer Producer
	Service  string
	NewID    func() string
}

func NewPublisher(p Producer, service string) *Publisher {
	return &Publisher{Producer: p, Service: service, NewID: uuid.NewString}
}

func (p *Publisher) StateChanged(ctx context.Context, c orders.StateChange, o orders.Order) {
	p.publish(ctx, orders.EventOrderStatusChanged, c.OrderID, c.CreatedAt, orders.NewStatusChangedPayload(c, o))
}

func (p *Publisher) ProgressChanged(ctx context.Context, o orders.Order) {
	p.publish(ctx, orders.EventOrderProgressChanged, o.ID, o.UpdatedAt, orders.NewProgressChangedPayload(o))
}

func (p *Publisher) publish(ctx context.Context, eventType, orderID string, at time.Time, payload any) {
	env := orders.Envelope{
		EventID:       p.NewID(),
		EventType:     eventType,
		EventVersion:  orders.EventVersion,
		OccurredAt:    at,
		Producer:      p.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(eventType)},
		{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(orders.EventVersion))},
	}
	otel.GetTextMapPropagator().Inject(ctx, kafkax.HeaderCarrier{Headers: &headers})
	p.Producer.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(env), headers...)
}

// Notifier mirrors fulfillment.Notifier.
type Notifier interface {
	StateChanged(ctx context.Context, c orders.StateChange, o orders.Order)
	ProgressChanged(ctx context.Context, o orders.Order)
}

// Fanout delivers each change to every notifier in order.
type Fanout []Notifier

func (f Fanout) StateChanged(ctx context.Context, c orders.StateChange, o orders.Order) {
	for _, n := range f {
		n.StateChanged(ctx, c, o)
	}
}

func (f Fanout) ProgressChanged(ctx context.Context, o orders.Order) {
	for _, n := range f {
		n.ProgressChanged(ctx, o)
	}
}
