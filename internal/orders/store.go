package orders

import (
	"context"
	"time"
)

// Store is the persistence provider for the workflow engine. All writes go
// through WithinTx; the plain getters are unlocked reads for the query side.
type Store interface {
	// WithinTx runs fn in one transaction. A non-nil error from fn rolls the
	// whole transaction back; nil commits it.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id string) (*Order, error)
	GetInventory(ctx context.Context, sku, bin string) (*InventoryUnit, error)
	ListPickTasks(ctx context.Context, orderID string) ([]PickTask, error)
	ListStateChanges(ctx context.Context, orderID string) ([]StateChange, error)
	// ListStuckOrders returns PICKING orders claimed before the cutoff.
	ListStuckOrders(ctx context.Context, claimedBefore time.Time) ([]Order, error)
}

// InventoryTx is the slice of a transaction the inventory ledger needs.
type InventoryTx interface {
	// LockInventory reads a unit under a row lock held until the end of the
	// transaction. Missing units yield *NotFoundError.
	LockInventory(ctx context.Context, sku, bin string) (*InventoryUnit, error)
	SaveInventory(ctx context.Context, u InventoryUnit) error
	CreateInventory(ctx context.Context, u InventoryUnit) error
}

// Tx is a transaction-scoped handle. Lock* methods take row locks that are
// held until commit or rollback.
type Tx interface {
	InventoryTx

	InsertOrder(ctx context.Context, o *Order) error
	FindOrderByExternalID(ctx context.Context, externalID string) (*Order, error)
	LockOrder(ctx context.Context, id string) (*Order, error)
	LockItems(ctx context.Context, orderID string) ([]OrderItem, error)
	// UpdateOrder persists everything except Progress.
	UpdateOrder(ctx context.Context, o *Order) error
	// ClaimOrder sets the picker only if the order is still PENDING and
	// unclaimed. It reports false when another claim got there first.
	ClaimOrder(ctx context.Context, orderID, pickerID string, at time.Time) (bool, error)
	// CountActiveOrders counts the picker's PICKING orders and serializes
	// concurrent claims by the same picker for the rest of the transaction.
	CountActiveOrders(ctx context.Context, pickerID string) (int, error)
	UpdateItem(ctx context.Context, it OrderItem) error
	// SetProgress is reserved for progress recalculation. It stamps
	// updated_at with at.
	SetProgress(ctx context.Context, orderID string, progress int, at time.Time) error

	InsertPickTasks(ctx context.Context, tasks []PickTask) error
	ListPickTasks(ctx context.Context, orderID string) ([]PickTask, error)
	UpdatePickTask(ctx context.Context, t PickTask) error
	DeleteIncompletePickTasks(ctx context.Context, orderID string) (int, error)

	// AppendStateChange is the only write the audit trail supports.
	AppendStateChange(ctx context.Context, c StateChange) error
	ListStateChanges(ctx context.Context, orderID string) ([]StateChange, error)
}
