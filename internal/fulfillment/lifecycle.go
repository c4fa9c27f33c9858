package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
)

type NewItem struct {
	SKU         string `json:"sku"`
	BinLocation string `json:"bin_location"`
	Quantity    int    `json:"quantity"`
}

type NewOrder struct {
	ExternalID   string    `json:"external_id"`
	CustomerName string    `json:"customer_name"`
	Priority     int       `json:"priority"`
	Items        []NewItem `json:"items"`
}

func (n NewOrder) validate() error {
	if len(n.Items) == 0 {
		return &orders.ValidationError{Reason: orders.ReasonInvalidInput, Message: "order must contain at least one item"}
	}
	if n.CustomerName == "" {
		return &orders.ValidationError{Reason: orders.ReasonInvalidInput, Message: "customer name is required"}
	}
	for i, it := range n.Items {
		if it.SKU == "" || it.BinLocation == "" {
			return &orders.ValidationError{Reason: orders.ReasonInvalidInput, Message: fmt.Sprintf("item %d: sku and bin location are required", i)}
		}
		if it.Quantity <= 0 {
			return &orders.ValidationError{Reason: orders.ReasonInvalidQuantity, Message: fmt.Sprintf("item %d (sku %s): quantity must be positive", i, it.SKU)}
		}
	}
	return nil
}

// CreateOrder inserts a PENDING order and reserves inventory for every item
// in the same transaction. A non-empty ExternalID makes the call idempotent:
// a repeat returns the existing order with existed=true.
func (s *Service) CreateOrder(ctx context.Context, in NewOrder) (order *orders.Order, existed bool, err error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}
	err = s.run(ctx, "create_order", in.ExternalID, func(ctx context.Context, tx orders.Tx, _ *committed) error {
		if in.ExternalID != "" {
			prev, err := tx.FindOrderByExternalID(ctx, in.ExternalID)
			var nf *orders.NotFoundError
			switch {
			case err == nil:
				order, existed = prev, true
				return nil
			case !errors.As(err, &nf):
				return err
			}
		}

		now := s.now()
		o := &orders.Order{
			ID:           s.cfg.NewID(),
			ExternalID:   in.ExternalID,
			Status:       orders.StatusPending,
			Priority:     in.Priority,
			CustomerName: in.CustomerName,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		for _, it := range in.Items {
			o.Items = append(o.Items, orders.OrderItem{
				ID:          s.cfg.NewID(),
				OrderID:     o.ID,
				SKU:         it.SKU,
				BinLocation: it.BinLocation,
				Quantity:    it.Quantity,
				Status:      orders.ItemPending,
			})
		}
		for _, it := range inLockOrder(o.Items) {
			if _, err := s.ledger.Reserve(ctx, tx, it.SKU, it.BinLocation, it.Quantity); err != nil {
				return err
			}
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		order, existed = o, false
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, existed, nil
}

// ShipOrder moves a PACKED order to SHIPPED and deducts its stock.
func (s *Service) ShipOrder(ctx context.Context, orderID string, info orders.ShippingInfo) (*orders.Order, error) {
	var res *orders.Order
	err := s.run(ctx, "ship_order", orderID, func(ctx context.Context, tx orders.Tx, out *committed) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		d, err := orders.ValidateTransition(o.Status, orders.StatusShipped, orders.TransitionContext{
			PickerID: deref(o.PickerID),
			PackerID: deref(o.PackerID),
			Items:    o.Items,
			Shipping: info,
		})
		if err != nil {
			return err
		}
		if d.DeductInventory {
			for _, it := range inLockOrder(o.Items) {
				if _, err := s.ledger.Deduct(ctx, tx, it.SKU, it.BinLocation, it.Quantity); err != nil {
					return err
				}
			}
		}
		now := s.now()
		o.Carrier = info.Carrier
		o.TrackingNumber = info.TrackingNumber
		o.ShippedAt = &now
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

// CancelOrder cancels a PENDING or PICKING order, releasing its reserved
// inventory and discarding unfinished pick tasks.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string) (*orders.Order, error) {
	return s.releasingTransition(ctx, "cancel_order", orderID, orders.StatusCancelled, reason)
}

// MarkBackorder parks a PENDING order that cannot be fulfilled yet and gives
// its reservations back.
func (s *Service) MarkBackorder(ctx context.Context, orderID, reason string) (*orders.Order, error) {
	return s.releasingTransition(ctx, "mark_backorder", orderID, orders.StatusBackorder, reason)
}

func (s *Service) releasingTransition(ctx context.Context, op, orderID string, to orders.Status, reason string) (*orders.Order, error) {
	var res *orders.Order
	err := s.run(ctx, op, orderID, func(ctx context.Context, tx orders.Tx, out *committed) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		d, err := orders.ValidateTransition(o.Status, to, orders.TransitionContext{
			PickerID: deref(o.PickerID),
			Items:    o.Items,
		})
		if err != nil {
			return err
		}
		if d.ReleaseInventory {
			for _, it := range inLockOrder(o.Items) {
				if _, err := s.ledger.Release(ctx, tx, it.SKU, it.BinLocation, it.Quantity); err != nil {
					return err
				}
			}
		}
		if d.DiscardPickTasks {
			if _, err := tx.DeleteIncompletePickTasks(ctx, o.ID); err != nil {
				return err
			}
		}
		if to == orders.StatusCancelled {
			o.CancelReason = reason
		}
		if err := s.transition(ctx, tx, o, d, orders.KindTransition, reason, out); err != nil {
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

// RestoreBackorder returns a BACKORDER order to PENDING, reserving its
// inventory again. Fails with *orders.InsufficientInventoryError while the
// stock is still short.
func (s *Service) RestoreBackorder(ctx context.Context, orderID string) (*orders.Order, error) {
	var res *orders.Order
	err := s.run(ctx, "restore_backorder", orderID, func(ctx context.Context, tx orders.Tx, out *committed) error {
		o, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		d, err := orders.ValidateTransition(o.Status, orders.StatusPending, orders.TransitionContext{Items: o.Items})
		if err != nil {
			return err
		}
		for _, it := range inLockOrder(o.Items) {
			if _, err := s.ledger.Reserve(ctx, tx, it.SKU, it.BinLocation, it.Quantity); err != nil {
				return err
			}
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
