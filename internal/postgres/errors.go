package postgres

import (
	"errors"
	"strings"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// translate maps driver errors that carry business meaning onto the domain
// error kinds. Everything else passes through and ends up as an internal
// error in the orchestrator.
func translate(err error, orderID string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return &orders.ConflictError{OrderID: orderID, Message: "concurrent update: " + pgErr.Message}
	case pgerrcode.UniqueViolation:
		return &orders.ConflictError{OrderID: orderID, Message: "duplicate: " + pgErr.ConstraintName}
	}
	return err
}

// translateInventory is translate for writes of u. A violated
// inventory_units check becomes an InsufficientInventoryError describing
// the row that was rejected: Requested is the reservation it asked for and
// Available the stock on hand.
func translateInventory(err error, u orders.InventoryUnit) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation &&
		strings.HasPrefix(pgErr.ConstraintName, "inventory_units_") {
		return &orders.InsufficientInventoryError{
			SKU:         u.SKU,
			BinLocation: u.BinLocation,
			Requested:   u.Reserved,
			Available:   max(u.Quantity, 0),
		}
	}
	return translate(err, "")
}
