// Package fulfillment is the single entry point for state-changing order
// operations. Each operation runs in one transaction: lock the rows it
// depends on, ask the workflow validator, apply the mutation and its side
// effects, write the audit record, and commit. Any failure rolls back.
package fulfillment

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/inventory"
	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ariefcatur/go-warehouse-fulfillment/internal/fulfillment"

// Notifier is told about every committed status change and every committed
// progress change. It runs after commit; its failures are logged and never
// undo the change.
type Notifier interface {
	StateChanged(ctx context.Context, change orders.StateChange, order orders.Order)
	ProgressChanged(ctx context.Context, order orders.Order)
}

type Config struct {
	MaxOrdersPerPicker int           // default orders.DefaultMaxOrdersPerPicker
	SessionTimeout     time.Duration // default orders.DefaultSessionTimeout
	Now                func() time.Time
	NewID              func() string
	Notifier           Notifier
}

type Service struct {
	store    orders.Store
	ledger   *inventory.Ledger
	progress *ProgressRecalculator
	audit    *AuditTrail
	cfg      Config
	tracer   trace.Tracer
}

func New(store orders.Store, cfg Config) *Service {
	if cfg.MaxOrdersPerPicker <= 0 {
		cfg.MaxOrdersPerPicker = orders.DefaultMaxOrdersPerPicker
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = orders.DefaultSessionTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	s := &Service{
		store:  store,
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}
	s.ledger = &inventory.Ledger{Now: s.now}
	s.progress = &ProgressRecalculator{Now: s.now}
	s.audit = &AuditTrail{Now: s.now, NewID: cfg.NewID}
	return s
}

func (s *Service) now() time.Time { return s.cfg.Now().UTC() }

// committed collects what to announce once the transaction is durable.
type committed struct {
	changes         []orders.StateChange
	order           *orders.Order
	progressChanged bool
}

// run executes fn in a transaction with tracing, error classification and
// post-commit notification.
func (s *Service) run(ctx context.Context, op, orderID string, fn func(ctx context.Context, tx orders.Tx, out *committed) error) error {
	ctx, span := s.tracer.Start(ctx, "fulfillment."+op, trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("actor", ActorFromContext(ctx)),
	))
	defer span.End()

	var out committed
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		out = committed{}
		return fn(ctx, tx, &out)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if orders.IsBusinessError(err) {
			log.Debug().Err(err).Str("op", op).Str("order_id", orderID).Msg("fulfillment: operation rejected")
			return err
		}
		log.Error().Err(err).Str("op", op).Str("order_id", orderID).Msg("fulfillment: operation failed, rolled back")
		return &orders.InternalError{Op: op, Err: err}
	}
	span.SetStatus(codes.Ok, "")

	if out.order == nil {
		return nil
	}
	nctx := context.WithoutCancel(ctx)
	for _, c := range out.changes {
		log.Info().Str("order_id", c.OrderID).Str("from", string(c.FromStatus)).Str("to", string(c.ToStatus)).
			Str("kind", string(c.Kind)).Str("actor", c.Actor).Msg("order status changed")
		if s.cfg.Notifier != nil {
			s.cfg.Notifier.StateChanged(nctx, c, *out.order)
		}
	}
	if out.progressChanged {
		log.Debug().Str("order_id", out.order.ID).Int("progress", out.order.Progress).Msg("order progress changed")
		if s.cfg.Notifier != nil {
			s.cfg.Notifier.ProgressChanged(nctx, *out.order)
		}
	}
	return nil
}

// transition writes the order row for a validated decision and appends the
// audit record in the same transaction.
func (s *Service) transition(ctx context.Context, tx orders.Tx, o *orders.Order, d orders.Decision, kind orders.ChangeKind, reason string, out *committed) error {
	o.Status = d.To
	o.UpdatedAt = s.now()
	if d.ClearPicker {
		o.PickerID = nil
		o.ClaimedAt = nil
	}
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return err
	}
	c, err := s.audit.Record(ctx, tx, o.ID, d.From, d.To, kind, reason, ActorFromContext(ctx))
	if err != nil {
		return err
	}
	out.changes = append(out.changes, c)
	out.order = o
	return nil
}

// lockOrder loads the order and its items under lock.
func lockOrder(ctx context.Context, tx orders.Tx, id string) (*orders.Order, error) {
	o, err := tx.LockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := tx.LockItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// inLockOrder returns a copy of items sorted by (sku, bin). Inventory rows
// are always locked in this order, so two transactions touching the same
// units cannot deadlock. The order's own item order is left alone.
func inLockOrder(items []orders.OrderItem) []orders.OrderItem {
	return slices.SortedFunc(slices.Values(items), func(a, b orders.OrderItem) int {
		return cmp.Or(cmp.Compare(a.SKU, b.SKU), cmp.Compare(a.BinLocation, b.BinLocation))
	})
}

func findItem(o *orders.Order, itemID string) (*orders.OrderItem, error) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], nil
		}
	}
	return nil, &orders.NotFoundError{Kind: "item", ID: itemID}
}

func requireStatus(o *orders.Order, want orders.Status, action string) error {
	if o.Status != want {
		return &orders.ValidationError{
			Reason:  orders.ReasonInvalidTransition,
			Message: action + " requires status " + string(want) + ", order is " + string(o.Status),
		}
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// GetOrder returns the order with its items.
func (s *Service) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil && !orders.IsBusinessError(err) {
		return nil, &orders.InternalError{Op: "get_order", Err: err}
	}
	return o, err
}

func (s *Service) PickTasks(ctx context.Context, orderID string) ([]orders.PickTask, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListPickTasks(ctx, orderID)
	if err != nil {
		return nil, &orders.InternalError{Op: "pick_tasks", Err: err}
	}
	return tasks, nil
}

func (s *Service) Inventory(ctx context.Context, sku, bin string) (*orders.InventoryUnit, error) {
	u, err := s.store.GetInventory(ctx, sku, bin)
	if err != nil && !orders.IsBusinessError(err) {
		return nil, &orders.InternalError{Op: "inventory", Err: err}
	}
	return u, err
}

// Restock receives qty units of sku into bin.
func (s *Service) Restock(ctx context.Context, sku, bin string, qty int) (*orders.InventoryUnit, error) {
	var unit *orders.InventoryUnit
	err := s.run(ctx, "restock", "", func(ctx context.Context, tx orders.Tx, _ *committed) error {
		u, err := s.ledger.Restock(ctx, tx, sku, bin, qty)
		unit = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return unit, nil
}
