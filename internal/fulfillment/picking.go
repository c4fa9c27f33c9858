package fulfillment

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
)

// ClaimOrder assigns a PENDING order to pickerID and moves it to PICKING.
// The claim is a conditional update: of two pickers racing for the same
// order exactly one wins, the other gets *orders.ConflictError.
func (s *Service) ClaimOrder(ctx context.Context, orderID, pickerID string) (*orders.Order, error) {
	if !hasActor(ctx) {
		ctx = WithActor(ctx, pickerID)
	}
	var res *orders.Order
	err := s.run(ctx, "claim_order", orderID, func(ctx context.Context, tx orders.Tx, out *committed) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status == orders.StatusPicking {
			return &orders.ConflictError{OrderID: orderID, Message: "order already claimed by " + deref(o.PickerID)}
		}
		active := 0
		if pickerID != "" {
			if active, err = tx.CountActiveOrders(ctx, pickerID); err != nil {
				return err
			}
		}
		d, err := orders.ValidateTransition(o.Status, orders.StatusPicking, orders.TransitionContext{
			PickerID:           pickerID,
			ActivePickerOrders: active,
			MaxPickerOrders:    s.cfg.MaxOrdersPerPicker,
		})
		if err != nil {
			return err
		}

		now := s.now()
		ok, err := tx.ClaimOrder(ctx, orderID, pickerID, now)
		if err != nil {
			return err
		}
		if !ok {
			return &orders.ConflictError{OrderID: orderID, Message: "order was claimed concurrently"}
		}
		picker := pickerID
		o.Status = orders.StatusPicking
		o.PickerID = &picker
		o.ClaimedAt = &now
		o.UpdatedAt = now

		if d.CreatePickTasks {
			if err := s.createPickTasks(ctx, tx, o); err != nil {
				return err
			}
		}
		c, err := s.audit.Record(ctx, tx, o.ID, d.From, d.To, orders.KindTransition, "", ActorFromContext(ctx))
		if err != nil {
			return err
		}
		out.changes = append(out.changes, c)
		out.order = o
		res = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// createPickTasks opens one task per item that has none yet. Completed tasks
// kept from an earlier, reset session are left alone.
func (s *Service) createPickTasks(ctx context.Context, tx orders.Tx, o *orders.Order) error {
	existing, err := tx.ListPickTasks(ctx, o.ID)
	if err != nil {
		return err
	}
	has := make(map[string]bool, len(existing))
	for _, t := range existing {
		has[t.OrderItemID] = true
	}
	now := s.now()
	var tasks []orders.PickTask
	for _, it := range o.Items {
		if has[it.ID] {
			continue
		}
		tasks = append(tasks, orders.PickTask{
			ID:             s.cfg.NewID(),
			OrderID:        o.ID,
			OrderItemID:    it.ID,
			SKU:            it.SKU,
			Quantity:       it.Quantity,
			PickedQuantity: it.PickedQuantity,
			Status:         orders.DeriveTaskStatus(it.PickedQuantity, it.Quantity),
			PickerID:       deref(o.PickerID),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	if len(tasks) == 0 {
		return nil
	}
	return tx.InsertPickTasks(ctx, tasks)
}

// PickItem records delta more units of an item as picked.
func (s *Service) PickItem(ctx context.Context, orderID, itemID string, delta int) (*orders.OrderItem, error) {
	if delta <= 0 {
		return nil, &orders.ValidationError{Reason: orders.ReasonInvalidQuantity, Message: fmt.Sprintf("pick quantity must be positive, got %d", delta)}
	}
	return s.mutateItem(ctx, "pick_item", orderID, itemID, orders.StatusPicking, func(it *orders.OrderItem) error {
		if it.PickedQuantity+delta > it.Quantity {
			return &orders.ValidationError{Reason: orders.ReasonOverPick, Message: fmt.Sprintf(
				"item %s: picking %d more would exceed ordered %d (picked %d)", it.ID, delta, it.Quantity, it.PickedQuantity)}
		}
		it.PickedQuantity += delta
		return nil
	})
}

// UndoPick is the inverse of PickItem.
func (s *Service) UndoPick(ctx context.Context, orderID, itemID string, delta int) (*orders.OrderItem, error) {
	if delta <= 0 {
		return nil, &orders.ValidationError{Reason: orders.ReasonInvalidQuantity, Message: fmt.Sprintf("undo quantity must be positive, got %d", delta)}
	}
	return s.mutateItem(ctx, "undo_pick", orderID, itemID, orders.StatusPicking, func(it *orders.OrderItem) error {
		if it.PickedQuantity-delta < 0 {
			return &orders.ValidationError{Reason: orders.ReasonUnderPick, Message: fmt.Sprintf(
				"item %s: cannot undo %d, only %d picked", it.ID, delta, it.PickedQuantity)}
		}
		if it.VerifiedQuantity > it.PickedQuantity-delta {
			return &orders.ValidationError{Reason: orders.ReasonInvalidQuantity, Message: fmt.Sprintf(
				"item %s: %d units already verified", it.ID, it.VerifiedQuantity)}
		}
		it.PickedQuantity -= delta
		return nil
	})
}

// mutateItem locks the order, applies change to one item, re-derives the
// item status, syncs its pick task and recalculates progress. A progress
// change is announced after commit.
func (s *Service) mutateItem(ctx context.Context, op, orderID, itemID string, want orders.Status, change func(*orders.OrderItem) error) (*orders.OrderItem, error) {
	var res orders.OrderItem
	err := s.run(ctx, op, orderID, func(ctx context.Context, tx orders.Tx, out *committed) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := requireStatus(o, want, op); err != nil {
			return err
		}
		it, err := findItem(o, itemID)
		if err != nil {
			return err
		}
		if err := change(it); err != nil {
			return err
		}
		it.Status = orders.DeriveItemStatus(it.PickedQuantity, it.Quantity)
		if err := tx.UpdateItem(ctx, *it); err != nil {
			return err
		}
		if want == orders.StatusPicking {
			if err := s.syncPickTask(ctx, tx, o, *it); err != nil {
				return err
			}
		}
		_, changed, err := s.progress.Recalculate(ctx, tx, o)
		if err != nil {
			return err
		}
		if changed {
			out.order = o
			out.progressChanged = true
		}
		res = *it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Service) syncPickTask(ctx context.Context, tx orders.Tx, o *orders.Order, it orders.OrderItem) error {
	tasks, err := tx.ListPickTasks(ctx, o.ID)
	if err != nil {
		return err
	}
	now := s.now()
	for _, t := range tasks {
		if t.OrderItemID != it.ID {
			continue
		}
		t.PickedQuantity = it.PickedQuantity
		t.Status = orders.DeriveTaskStatus(it.PickedQuantity, t.Quantity)
		t.PickerID = deref(o.PickerID)
		t.UpdatedAt = now
		return tx.UpdatePickTask(ctx, t)
	}
	return tx.InsertPickTasks(ctx, []orders.PickTask{{
		ID:             s.cfg.NewID(),
		OrderID:        o.ID,
		OrderItemID:    it.ID,
		SKU:            it.SKU,
		Quantity:       it.Quantity,
		PickedQuantity: it.PickedQuantity,
		Status:         orders.DeriveTaskStatus(it.PickedQuantity, it.Quantity),
		PickerID:       deref(o.PickerID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}})
}

// CompletePicking moves a fully picked order from PICKING to PICKED.
func (s *Service) CompletePicking(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.simpleTransition(ctx, "complete_picking", orderID, orders.StatusPicked, func(o *orders.Order) orders.TransitionContext {
		return orders.TransitionContext{PickerID: deref(o.PickerID), Items: o.Items}
	}, nil)
}

// simpleTransition covers transitions whose only side effect is the order
// row itself. prepare builds the validator context; apply, if set, edits the
// order after validation.
func (s *Service) simpleTransition(ctx context.Context, op, orderID string, to orders.Status,
	prepare func(*orders.Order) orders.TransitionContext, apply func(*orders.Order)) (*orders.Order, error) {
	var res *orders.Order
	err := s.run(ctx, op, orderID, func(ctx context.Context, tx orders.Tx, out *committed) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		d, err := orders.ValidateTransition(o.Status, to, prepare(o))
		if err != nil {
			return err
		}
		if apply != nil {
			apply(o)
		}
		if err := s.transition(ctx, tx, o, d, orders.KindTransition, "", out); err != nil {
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
