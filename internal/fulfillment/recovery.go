package fulfillment

import (
	"context"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/rs/zerolog/log"
)

const resetReason = "picking session exceeded timeout"

// ResetStuckOrder is the administrative recovery path for an abandoned
// picking session: the order goes back to PENDING, the picker is cleared and
// unfinished pick tasks are discarded. Picked quantities and reservations
// stay. The change is audited with kind "recovery".
func (s *Service) ResetStuckOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	var res *orders.Order
	err := s.run(ctx, "reset_stuck_order", orderID, func(ctx context.Context, tx orders.Tx, out *committed) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		d, err := orders.ValidateRecovery(o.Status, o.ClaimedAt, s.now(), s.cfg.SessionTimeout)
		if err != nil {
			return err
		}
		if d.DiscardPickTasks {
			n, err := tx.DeleteIncompletePickTasks(ctx, o.ID)
			if err != nil {
				return err
			}
			log.Debug().Str("order_id", o.ID).Int("tasks", n).Msg("fulfillment: discarded pick tasks")
		}
		if err := s.transition(ctx, tx, o, d, orders.KindRecovery, resetReason, out); err != nil {
			return err
		}
		res = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// StuckOrders lists PICKING orders whose session exceeded the timeout.
func (s *Service) StuckOrders(ctx context.Context) ([]orders.Order, error) {
	list, err := s.store.ListStuckOrders(ctx, s.now().Add(-s.cfg.SessionTimeout))
	if err != nil {
		return nil, &orders.InternalError{Op: "stuck_orders", Err: err}
	}
	return list, nil
}

// SweepStuckOrders resets every stuck order and reports how many were reset.
// An order that changed since it was listed is skipped.
func (s *Service) SweepStuckOrders(ctx context.Context) (int, error) {
	list, err := s.StuckOrders(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range list {
		if _, err := s.ResetStuckOrder(ctx, o.ID); err != nil {
			if orders.IsBusinessError(err) {
				log.Debug().Err(err).Str("order_id", o.ID).Msg("sweeper: skip order")
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}
