package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/wh?sslmode=disable":   "pgx5://u:p@db:5432/wh?sslmode=disable",
		"postgresql://u:p@db:5432/wh?sslmode=disable": "pgx5://u:p@db:5432/wh?sslmode=disable",
		"pgx5://u:p@db/wh":                            "pgx5://u:p@db/wh",
	}
	for in, want := range cases {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

func TestTranslate(t *testing.T) {
	pg := func(code, constraint string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, ConstraintName: constraint})
	}
	var ce *orders.ConflictError

	assert.ErrorAs(t, translate(pg(pgerrcode.SerializationFailure, ""), "o-1"), &ce)
	assert.Equal(t, "o-1", ce.OrderID)
	assert.ErrorAs(t, translate(pg(pgerrcode.DeadlockDetected, ""), "o-1"), &ce)
	assert.ErrorAs(t, translate(pg(pgerrcode.LockNotAvailable, ""), "o-1"), &ce)
	assert.ErrorAs(t, translate(pg(pgerrcode.UniqueViolation, "orders_external_id_key"), "o-1"), &ce)
	assert.Contains(t, ce.Message, "orders_external_id_key")

	other := pg(pgerrcode.CheckViolation, "order_items_picked_chk")
	assert.Same(t, other, translate(other, "o-1"))
	assert.Same(t, other, translateInventory(other, orders.InventoryUnit{SKU: "SKU-1"}))

	plain := errors.New("connection reset")
	assert.Same(t, plain, translate(plain, "o-1"))
	assert.Nil(t, translate(nil, "o-1"))
}

func TestTranslateInventoryNamesTheRow(t *testing.T) {
	u := orders.InventoryUnit{SKU: "SKU-9", BinLocation: "C-03", Quantity: 4, Reserved: 6}
	err := translateInventory(fmt.Errorf("exec: %w", &pgconn.PgError{
		Code: pgerrcode.CheckViolation, ConstraintName: "inventory_units_reserved_chk",
	}), u)

	var ie *orders.InsufficientInventoryError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, &orders.InsufficientInventoryError{SKU: "SKU-9", BinLocation: "C-03", Requested: 6, Available: 4}, ie)
	assert.Contains(t, err.Error(), "sku=SKU-9 bin=C-03")

	var ce *orders.ConflictError
	dl := fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected})
	assert.ErrorAs(t, translateInventory(dl, u), &ce)
	assert.Nil(t, translateInventory(nil, u))
}
