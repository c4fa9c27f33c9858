package events

import (
	"context"
	"fmt"

	kafkax "github.com/ariefcatur/go-warehouse-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/redisx"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Forget(ctx context.Context, id string) error
}

type StatusWriter interface {
	Set(ctx context.Context, v redisx.StatusView) error
}

// Projector keeps the order status read model current from the
// order.status.changed topic, which carries both status and progress events.
// Redelivered events are skipped by event id.
type Projector struct {
	Dedup Deduper
	Views StatusWriter
}

// Handle is a kafkax.Handler.
func (p *Projector) Handle(ctx context.Context, m kafka.Message) error {
	ctx = otel.GetTextMapPropagator().Extract(ctx, kafkax.HeaderCarrier{Headers: &m.Headers})
	ctx, span := otel.Tracer("github.com/ariefcatur/go-warehouse-fulfillment/internal/events").
		Start(ctx, "projector.handle")
	defer span.End()

	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// poison message: log and commit so the partition keeps moving
		log.Error().Err(err).Int64("offset", m.Offset).Msg("projector: invalid envelope, skipping")
		return nil
	}
	if env.EventType != orders.EventOrderStatusChanged && env.EventType != orders.EventOrderProgressChanged {
		return nil
	}
	span.SetAttributes(attribute.String("event.id", env.EventID), attribute.String("order.id", env.CorrelationID))

	first, err := p.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("projector: dedup %s: %w", env.EventID, err)
	}
	if !first {
		log.Debug().Str("event_id", env.EventID).Msg("projector: duplicate event")
		return nil
	}

	view, err := viewFromEnvelope(env)
	if err != nil {
		log.Error().Err(err).Str("event_id", env.EventID).Msg("projector: invalid payload, skipping")
		return nil
	}
	if err := p.Views.Set(ctx, view); err != nil {
		if ferr := p.Dedup.Forget(ctx, env.EventID); ferr != nil {
			log.Warn().Err(ferr).Str("event_id", env.EventID).Msg("projector: forget dedup key")
		}
		return fmt.Errorf("projector: write view %s: %w", view.OrderID, err)
	}
	log.Debug().Str("order_id", view.OrderID).Str("status", string(view.Status)).Int("progress", view.Progress).
		Msg("projector: view updated")
	return nil
}

func viewFromEnvelope(env orders.Envelope) (redisx.StatusView, error) {
	if env.EventType == orders.EventOrderProgressChanged {
		pl, err := kafkax.UnwrapPayload[orders.ProgressChangedPayload](env.Payload)
		if err != nil {
			return redisx.StatusView{}, err
		}
		return redisx.StatusView{
			OrderID:   pl.OrderID,
			Status:    pl.Status,
			Progress:  pl.Progress,
			PickerID:  pl.PickerID,
			UpdatedAt: pl.ChangedAt,
		}, nil
	}
	pl, err := kafkax.UnwrapPayload[orders.StatusChangedPayload](env.Payload)
	if err != nil {
		return redisx.StatusView{}, err
	}
	return redisx.StatusView{
		OrderID:   pl.OrderID,
		Status:    pl.ToStatus,
		Progress:  pl.Progress,
		PickerID:  pl.PickerID,
		UpdatedAt: pl.ChangedAt,
	}, nil
}

// CacheWriter updates the read model synchronously on the API side, so a
// client reading right after a transition does not wait for the worker.
type CacheWriter struct {
	Views StatusWriter
}

func (w CacheWriter) StateChanged(ctx context.Context, _ orders.StateChange, o orders.Order) {
	w.write(ctx, o)
}

func (w CacheWriter) ProgressChanged(ctx context.Context, o orders.Order) {
	w.write(ctx, o)
}

func (w CacheWriter) write(ctx context.Context, o orders.Order) {
	if err := w.Views.Set(ctx, redisx.ViewOf(o)); err != nil {
		log.Warn().Err(err).Str("order_id", o.ID).Msg("status cache write failed")
	}
}
