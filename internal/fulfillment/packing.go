package fulfillment

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
)

// StartPacking hands a PICKED order to packerID.
func (s *Service) StartPacking(ctx context.Context, orderID, packerID string) (*orders.Order, error) {
	if !hasActor(ctx) {
		ctx = WithActor(ctx, packerID)
	}
	return s.simpleTransition(ctx, "start_packing", orderID, orders.StatusPacking, func(o *orders.Order) orders.TransitionContext {
		return orders.TransitionContext{PickerID: deref(o.PickerID), PackerID: packerID}
	}, func(o *orders.Order) {
		p := packerID
		o.PackerID = &p
	})
}

// VerifyItem confirms delta picked units of an item at the packing station.
func (s *Service) VerifyItem(ctx context.Context, orderID, itemID string, delta int) (*orders.OrderItem, error) {
	if delta <= 0 {
		return nil, &orders.ValidationError{Reason: orders.ReasonInvalidQuantity, Message: fmt.Sprintf("verify quantity must be positive, got %d", delta)}
	}
	return s.mutateItem(ctx, "verify_item", orderID, itemID, orders.StatusPacking, func(it *orders.OrderItem) error {
		if it.VerifiedQuantity+delta > it.PickedQuantity {
			return &orders.ValidationError{Reason: orders.ReasonInvalidQuantity, Message: fmt.Sprintf(
				"item %s: verifying %d more would exceed picked %d (verified %d)", it.ID, delta, it.PickedQuantity, it.VerifiedQuantity)}
		}
		it.VerifiedQuantity += delta
		return nil
	})
}

// UndoVerify is the inverse of VerifyItem.
func (s *Service) UndoVerify(ctx context.Context, orderID, itemID string, delta int) (*orders.OrderItem, error) {
	if delta <= 0 {
		return nil, &orders.ValidationError{Reason: orders.ReasonInvalidQuantity, Message: fmt.Sprintf("undo quantity must be positive, got %d", delta)}
	}
	return s.mutateItem(ctx, "undo_verify", orderID, itemID, orders.StatusPacking, func(it *orders.OrderItem) error {
		if it.VerifiedQuantity-delta < 0 {
			return &orders.ValidationError{Reason: orders.ReasonInvalidQuantity, Message: fmt.Sprintf(
				"item %s: cannot undo %d, only %d verified", it.ID, delta, it.VerifiedQuantity)}
		}
		it.VerifiedQuantity -= delta
		return nil
	})
}

// CompletePacking moves a fully verified order from PACKING to PACKED.
func (s *Service) CompletePacking(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.simpleTransition(ctx, "complete_packing", orderID, orders.StatusPacked, func(o *orders.Order) orders.TransitionContext {
		return orders.TransitionContext{PickerID: deref(o.PickerID), PackerID: deref(o.PackerID), Items: o.Items}
	}, nil)
}
