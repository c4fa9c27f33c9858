package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/rs/zerolog/log"
)

// Ledger owns the per-SKU, per-bin quantity and reservation counters.
//
// Every method runs inside the caller's transaction and locks the unit row
// before reading it, so concurrent reservations of the same (sku, bin)
// serialize and re-evaluate availability after the first one commits.
// Calls are not idempotent: retrying the enclosing operation is the caller's
// concern.
type Ledger struct {
	Now func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// Reserve increases reserved by qty iff available >= qty.
func (l *Ledger) Reserve(ctx context.Context, tx orders.InventoryTx, sku, bin string, qty int) (*orders.InventoryUnit, error) {
	if err := positive("reserve", qty); err != nil {
		return nil, err
	}
	u, err := tx.LockInventory(ctx, sku, bin)
	if err != nil {
		return nil, err
	}
	if u.Available() < qty {
		return nil, &orders.InsufficientInventoryError{
			SKU: sku, BinLocation: bin, Requested: qty, Available: u.Available(),
		}
	}
	u.Reserved += qty
	return l.save(ctx, tx, u)
}

// Release decreases reserved by qty, clamped at zero.
func (l *Ledger) Release(ctx context.Context, tx orders.InventoryTx, sku, bin string, qty int) (*orders.InventoryUnit, error) {
	if err := positive("release", qty); err != nil {
		return nil, err
	}
	u, err := tx.LockInventory(ctx, sku, bin)
	if err != nil {
		return nil, err
	}
	if qty > u.Reserved {
		log.Warn().Str("sku", sku).Str("bin", bin).Int("reserved", u.Reserved).Int("release", qty).
			Msg("ledger: release exceeds reservation, clamping at zero")
		qty = u.Reserved
	}
	u.Reserved -= qty
	return l.save(ctx, tx, u)
}

// Deduct removes qty physically: both quantity and reserved drop by qty.
func (l *Ledger) Deduct(ctx context.Context, tx orders.InventoryTx, sku, bin string, qty int) (*orders.InventoryUnit, error) {
	if err := positive("deduct", qty); err != nil {
		return nil, err
	}
	u, err := tx.LockInventory(ctx, sku, bin)
	if err != nil {
		return nil, err
	}
	if u.Quantity < qty || u.Reserved < qty {
		return nil, &orders.InsufficientInventoryError{
			SKU: sku, BinLocation: bin, Requested: qty, Available: min(u.Quantity, u.Reserved),
		}
	}
	u.Quantity -= qty
	u.Reserved -= qty
	return l.save(ctx, tx, u)
}

// Restock adds qty on hand, creating the unit when the bin is new.
func (l *Ledger) Restock(ctx context.Context, tx orders.InventoryTx, sku, bin string, qty int) (*orders.InventoryUnit, error) {
	if err := positive("restock", qty); err != nil {
		return nil, err
	}
	if sku == "" || bin == "" {
		return nil, &orders.ValidationError{Reason: orders.ReasonInvalidInput, Message: "sku and bin location are required"}
	}
	u, err := tx.LockInventory(ctx, sku, bin)
	var nf *orders.NotFoundError
	switch {
	case errors.As(err, &nf):
		nu := orders.InventoryUnit{SKU: sku, BinLocation: bin, Quantity: qty, UpdatedAt: l.now()}
		if err := tx.CreateInventory(ctx, nu); err != nil {
			return nil, err
		}
		return &nu, nil
	case err != nil:
		return nil, err
	}
	u.Quantity += qty
	return l.save(ctx, tx, u)
}

func (l *Ledger) save(ctx context.Context, tx orders.InventoryTx, u *orders.InventoryUnit) (*orders.InventoryUnit, error) {
	if err := CheckUnit(*u); err != nil {
		return nil, err
	}
	u.UpdatedAt = l.now()
	if err := tx.SaveInventory(ctx, *u); err != nil {
		return nil, err
	}
	return u, nil
}

// CheckUnit enforces quantity >= 0, reserved >= 0 and reserved <= quantity.
func CheckUnit(u orders.InventoryUnit) error {
	if u.Quantity < 0 || u.Reserved < 0 || u.Reserved > u.Quantity {
		return &orders.InsufficientInventoryError{
			SKU: u.SKU, BinLocation: u.BinLocation, Requested: u.Reserved, Available: u.Quantity,
		}
	}
	return nil
}

func positive(op string, qty int) error {
	if qty <= 0 {
		return &orders.ValidationError{
			Reason:  orders.ReasonInvalidQuantity,
			Message: fmt.Sprintf("%s quantity must be positive, got %d", op, qty),
		}
	}
	return nil
}
