package fulfillment

import (
	"context"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
)

// AuditTrail records every successful status transition. It can append and
// read, nothing else.
type AuditTrail struct {
	Now   func() time.Time
	NewID func() string
}

func (a *AuditTrail) Record(ctx context.Context, tx orders.Tx, orderID string, from, to orders.Status, kind orders.ChangeKind, reason, actor string) (orders.StateChange, error) {
	c := orders.StateChange{
		ID:         a.NewID(),
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		Kind:       kind,
		Reason:     reason,
		Actor:      actor,
		CreatedAt:  a.Now(),
	}
	if err := tx.AppendStateChange(ctx, c); err != nil {
		return orders.StateChange{}, err
	}
	return c, nil
}

// History returns the audit trail of one order, oldest first.
func (s *Service) History(ctx context.Context, orderID string) ([]orders.StateChange, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	changes, err := s.store.ListStateChanges(ctx, orderID)
	if err != nil {
		return nil, &orders.InternalError{Op: "history", Err: err}
	}
	return changes, nil
}
