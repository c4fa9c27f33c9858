package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
)

var (
	_ orders.Store = (*Store)(nil)
	_ orders.Tx    = (*tx)(nil)
)

type tx struct{ q pgx.Tx }

func (t *tx) LockInventory(ctx context.Context, sku, bin string) (*orders.InventoryUnit, error) {
	return selectInventory(ctx, t.q, sku, bin, true)
}

func (t *tx) SaveInventory(ctx context.Context, u orders.InventoryUnit) error {
	ct, err := t.q.Exec(ctx, `UPDATE inventory_units SET quantity = $3, reserved = $4, updated_at = $5
		WHERE sku = $1 AND bin_location = $2`, u.SKU, u.BinLocation, u.Quantity, u.Reserved, u.UpdatedAt)
	if err != nil {
		return translateInventory(err, u)
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: "inventory", ID: u.SKU + "@" + u.BinLocation}
	}
	return nil
}

func (t *tx) CreateInventory(ctx context.Context, u orders.InventoryUnit) error {
	_, err := t.q.Exec(ctx, `INSERT INTO inventory_units (sku, bin_location, quantity, reserved, updated_at)
		VALUES ($1, $2, $3, $4, $5)`, u.SKU, u.BinLocation, u.Quantity, u.Reserved, u.UpdatedAt)
	return translateInventory(err, u)
}

func (t *tx) InsertOrder(ctx context.Context, o *orders.Order) error {
	var ext *string
	if o.ExternalID != "" {
		ext = &o.ExternalID
	}
	if _, err := t.q.Exec(ctx, `INSERT INTO orders (id, external_id, status, priority, customer_name,
		progress, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, ext, string(o.Status), o.Priority, o.CustomerName, o.Progress, o.CreatedAt, o.UpdatedAt); err != nil {
		return translate(err, o.ID)
	}
	for _, it := range o.Items {
		if _, err := t.q.Exec(ctx, `INSERT INTO order_items (id, order_id, sku, bin_location, quantity,
			picked_quantity, verified_quantity, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, o.ID, it.SKU, it.BinLocation, it.Quantity, it.PickedQuantity, it.VerifiedQuantity,
			string(it.Status)); err != nil {
			return translate(err, o.ID)
		}
	}
	return nil
}

func (t *tx) FindOrderByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	var id string
	err := t.q.QueryRow(ctx, `SELECT id FROM orders WHERE external_id = $1`, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &orders.NotFoundError{Kind: "order", ID: externalID}
	}
	if err != nil {
		return nil, err
	}
	o, err := selectOrder(ctx, t.q, id, false)
	if err != nil {
		return nil, err
	}
	if o.Items, err = selectItems(ctx, t.q, id, false); err != nil {
		return nil, err
	}
	return o, nil
}

func (t *tx) LockOrder(ctx context.Context, id string) (*orders.Order, error) {
	return selectOrder(ctx, t.q, id, true)
}

func (t *tx) LockItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	return selectItems(ctx, t.q, orderID, true)
}

func (t *tx) UpdateOrder(ctx context.Context, o *orders.Order) error {
	ct, err := t.q.Exec(ctx, `UPDATE orders SET status = $2, priority = $3, customer_name = $4,
		picker_id = $5, packer_id = $6, claimed_at = $7, carrier = $8, tracking_number = $9,
		shipped_at = $10, cancel_reason = $11, updated_at = $12
		WHERE id = $1`,
		o.ID, string(o.Status), o.Priority, o.CustomerName, o.PickerID, o.PackerID, o.ClaimedAt,
		o.Carrier, o.TrackingNumber, o.ShippedAt, o.CancelReason, o.UpdatedAt)
	if err != nil {
		return translate(err, o.ID)
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: "order", ID: o.ID}
	}
	return nil
}

func (t *tx) ClaimOrder(ctx context.Context, orderID, pickerID string, at time.Time) (bool, error) {
	ct, err := t.q.Exec(ctx, `UPDATE orders SET status = 'PICKING', picker_id = $2, claimed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'PENDING' AND picker_id IS NULL`, orderID, pickerID, at)
	if err != nil {
		return false, translate(err, orderID)
	}
	return ct.RowsAffected() == 1, nil
}

func (t *tx) CountActiveOrders(ctx context.Context, pickerID string) (int, error) {
	// serialize claims by the same picker until the transaction ends
	if _, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "picker:"+pickerID); err != nil {
		return 0, translate(err, "")
	}
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE picker_id = $1 AND status = 'PICKING'`,
		pickerID).Scan(&n)
	return n, err
}

func (t *tx) UpdateItem(ctx context.Context, it orders.OrderItem) error {
	ct, err := t.q.Exec(ctx, `UPDATE order_items SET picked_quantity = $2, verified_quantity = $3, status = $4
		WHERE id = $1`, it.ID, it.PickedQuantity, it.VerifiedQuantity, string(it.Status))
	if err != nil {
		return translate(err, it.OrderID)
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: "item", ID: it.ID}
	}
	return nil
}

func (t *tx) SetProgress(ctx context.Context, orderID string, progress int, at time.Time) error {
	ct, err := t.q.Exec(ctx, `UPDATE orders SET progress = $2, updated_at = $3 WHERE id = $1`, orderID, progress, at)
	if err != nil {
		return translate(err, orderID)
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: "order", ID: orderID}
	}
	return nil
}

func (t *tx) InsertPickTasks(ctx context.Context, tasks []orders.PickTask) error {
	b := &pgx.Batch{}
	for _, pt := range tasks {
		b.Queue(`INSERT INTO pick_tasks (id, order_id, order_item_id, sku, quantity, picked_quantity,
			status, picker_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			pt.ID, pt.OrderID, pt.OrderItemID, pt.SKU, pt.Quantity, pt.PickedQuantity,
			string(pt.Status), pt.PickerID, pt.CreatedAt, pt.UpdatedAt)
	}
	return translate(t.q.SendBatch(ctx, b).Close(), "")
}

func (t *tx) ListPickTasks(ctx context.Context, orderID string) ([]orders.PickTask, error) {
	return selectPickTasks(ctx, t.q, orderID)
}

func (t *tx) UpdatePickTask(ctx context.Context, pt orders.PickTask) error {
	ct, err := t.q.Exec(ctx, `UPDATE pick_tasks SET picked_quantity = $2, status = $3, picker_id = $4, updated_at = $5
		WHERE id = $1`, pt.ID, pt.PickedQuantity, string(pt.Status), pt.PickerID, pt.UpdatedAt)
	if err != nil {
		return translate(err, pt.OrderID)
	}
	if ct.RowsAffected() != 1 {
		return &orders.NotFoundError{Kind: "pick task", ID: pt.ID}
	}
	return nil
}

func (t *tx) DeleteIncompletePickTasks(ctx context.Context, orderID string) (int, error) {
	ct, err := t.q.Exec(ctx, `DELETE FROM pick_tasks WHERE order_id = $1 AND status <> 'COMPLETED'`, orderID)
	if err != nil {
		return 0, translate(err, orderID)
	}
	return int(ct.RowsAffected()), nil
}

func (t *tx) AppendStateChange(ctx context.Context, c orders.StateChange) error {
	_, err := t.q.Exec(ctx, `INSERT INTO order_state_changes (id, order_id, from_status, to_status, kind,
		reason, actor, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.OrderID, string(c.FromStatus), string(c.ToStatus), string(c.Kind), c.Reason, c.Actor, c.CreatedAt)
	return translate(err, c.OrderID)
}

func (t *tx) ListStateChanges(ctx context.Context, orderID string) ([]orders.StateChange, error) {
	return selectStateChanges(ctx, t.q, orderID)
}
