package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// querier is what both *pgxpool.Pool and pgx.Tx offer.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) (err error) {
	ptx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = ptx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if rbErr := ptx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("postgres: rollback failed")
			}
		}
	}()

	if err = fn(ctx, &tx{q: ptx}); err != nil {
		return err
	}
	if err = ptx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("postgres: commit: %w", err), "")
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	o, err := selectOrder(ctx, s.DB, id, false)
	if err != nil {
		return nil, err
	}
	if o.Items, err = selectItems(ctx, s.DB, id, false); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) GetInventory(ctx context.Context, sku, bin string) (*orders.InventoryUnit, error) {
	return selectInventory(ctx, s.DB, sku, bin, false)
}

func (s *Store) ListPickTasks(ctx context.Context, orderID string) ([]orders.PickTask, error) {
	return selectPickTasks(ctx, s.DB, orderID)
}

func (s *Store) ListStateChanges(ctx context.Context, orderID string) ([]orders.StateChange, error) {
	return selectStateChanges(ctx, s.DB, orderID)
}

func (s *Store) ListStuckOrders(ctx context.Context, claimedBefore time.Time) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = 'PICKING' AND claimed_at < $1 ORDER BY claimed_at`, claimedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const orderColumns = `id, COALESCE(external_id, ''), status, priority, customer_name, progress,
	picker_id, packer_id, claimed_at, carrier, tracking_number, shipped_at, cancel_reason,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	var status string
	err := row.Scan(&o.ID, &o.ExternalID, &status, &o.Priority, &o.CustomerName, &o.Progress,
		&o.PickerID, &o.PackerID, &o.ClaimedAt, &o.Carrier, &o.TrackingNumber, &o.ShippedAt,
		&o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = orders.Status(status)
	return &o, nil
}

func selectOrder(ctx context.Context, q querier, id string, lock bool) (*orders.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &orders.NotFoundError{Kind: "order", ID: id}
	}
	if err != nil {
		return nil, translate(err, id)
	}
	return o, nil
}

func selectItems(ctx context.Context, q querier, orderID string, lock bool) ([]orders.OrderItem, error) {
	sql := `SELECT id, order_id, sku, bin_location, quantity, picked_quantity, verified_quantity, status
		FROM order_items WHERE order_id = $1 ORDER BY position`
	if lock {
		sql += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, sql, orderID)
	if err != nil {
		return nil, translate(err, orderID)
	}
	defer rows.Close()

	out := []orders.OrderItem{}
	for rows.Next() {
		var it orders.OrderItem
		var status string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SKU, &it.BinLocation, &it.Quantity,
			&it.PickedQuantity, &it.VerifiedQuantity, &status); err != nil {
			return nil, err
		}
		it.Status = orders.ItemStatus(status)
		out = append(out, it)
	}
	return out, rows.Err()
}

func selectInventory(ctx context.Context, q querier, sku, bin string, lock bool) (*orders.InventoryUnit, error) {
	sql := `SELECT sku, bin_location, quantity, reserved, updated_at
		FROM inventory_units WHERE sku = $1 AND bin_location = $2`
	if lock {
		sql += ` FOR UPDATE`
	}
	var u orders.InventoryUnit
	err := q.QueryRow(ctx, sql, sku, bin).Scan(&u.SKU, &u.BinLocation, &u.Quantity, &u.Reserved, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &orders.NotFoundError{Kind: "inventory", ID: sku + "@" + bin}
	}
	if err != nil {
		return nil, translate(err, "")
	}
	return &u, nil
}

func selectPickTasks(ctx context.Context, q querier, orderID string) ([]orders.PickTask, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, order_item_id, sku, quantity, picked_quantity,
		status, picker_id, created_at, updated_at
		FROM pick_tasks WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.PickTask
	for rows.Next() {
		var t orders.PickTask
		var status string
		if err := rows.Scan(&t.ID, &t.OrderID, &t.OrderItemID, &t.SKU, &t.Quantity, &t.PickedQuantity,
			&status, &t.PickerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = orders.TaskStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func selectStateChanges(ctx context.Context, q querier, orderID string) ([]orders.StateChange, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, from_status, to_status, kind, reason, actor, created_at
		FROM order_state_changes WHERE order_id = $1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.StateChange
	for rows.Next() {
		var c orders.StateChange
		var from, to, kind string
		if err := rows.Scan(&c.ID, &c.OrderID, &from, &to, &kind, &c.Reason, &c.Actor, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.FromStatus, c.ToStatus, c.Kind = orders.Status(from), orders.Status(to), orders.ChangeKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}
