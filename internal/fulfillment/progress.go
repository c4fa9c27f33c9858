package fulfillment

import (
	"context"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
)

// ProgressRecalculator keeps Order.Progress in sync with item pick
// quantities. It is called after every successful item write, inside the
// same transaction, and writes only when the value actually changes, so its
// own write never feeds back into another recalculation.
type ProgressRecalculator struct {
	Now func() time.Time
}

// Recalculate returns the current progress and whether it was rewritten.
func (p *ProgressRecalculator) Recalculate(ctx context.Context, tx orders.Tx, o *orders.Order) (int, bool, error) {
	items, err := tx.LockItems(ctx, o.ID)
	if err != nil {
		return 0, false, err
	}
	next := orders.CalculateProgress(items)
	if next == o.Progress {
		return next, false, nil
	}
	now := p.Now()
	if err := tx.SetProgress(ctx, o.ID, next, now); err != nil {
		return 0, false, err
	}
	o.Progress = next
	o.UpdatedAt = now
	return next, true, nil
}
