package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
)

// tx needs no row locks of its own: the store lock is held for the whole
// transaction.
var _ orders.Tx = (*tx)(nil)

type tx struct {
	d      *data
	faults map[string]error
}

func (t *tx) fault(method string) error {
	return t.faults[method]
}

func (t *tx) LockInventory(_ context.Context, sku, bin string) (*orders.InventoryUnit, error) {
	if err := t.fault("LockInventory"); err != nil {
		return nil, err
	}
	u, ok := t.d.inventory[invKey{sku, bin}]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "inventory", ID: sku + "@" + bin}
	}
	return &u, nil
}

func (t *tx) SaveInventory(_ context.Context, u orders.InventoryUnit) error {
	if err := t.fault("SaveInventory"); err != nil {
		return err
	}
	k := invKey{u.SKU, u.BinLocation}
	if _, ok := t.d.inventory[k]; !ok {
		return &orders.NotFoundError{Kind: "inventory", ID: u.SKU + "@" + u.BinLocation}
	}
	// mirrors the CHECK constraints of the SQL schema
	if u.Quantity < 0 || u.Reserved < 0 || u.Reserved > u.Quantity {
		return fmt.Errorf("memstore: inventory check violated for %s@%s", u.SKU, u.BinLocation)
	}
	t.d.inventory[k] = u
	return nil
}

func (t *tx) CreateInventory(_ context.Context, u orders.InventoryUnit) error {
	if err := t.fault("CreateInventory"); err != nil {
		return err
	}
	k := invKey{u.SKU, u.BinLocation}
	if _, ok := t.d.inventory[k]; ok {
		return &orders.ConflictError{OrderID: "-", Message: "inventory unit already exists: " + u.SKU + "@" + u.BinLocation}
	}
	t.d.inventory[k] = u
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	if err := t.fault("InsertOrder"); err != nil {
		return err
	}
	if _, ok := t.d.orders[o.ID]; ok {
		return &orders.ConflictError{OrderID: o.ID, Message: "order already exists"}
	}
	if o.ExternalID != "" {
		if _, ok := t.d.externalIDs[o.ExternalID]; ok {
			return &orders.ConflictError{OrderID: o.ID, Message: "external id already used: " + o.ExternalID}
		}
		t.d.externalIDs[o.ExternalID] = o.ID
	}
	row := *o
	row.Items = nil
	t.d.orders[o.ID] = row
	t.d.orderSeq = append(t.d.orderSeq, o.ID)
	for _, it := range o.Items {
		t.d.items[it.ID] = it
		t.d.itemsByOrd[o.ID] = append(t.d.itemsByOrd[o.ID], it.ID)
	}
	return nil
}

func (t *tx) FindOrderByExternalID(ctx context.Context, externalID string) (*orders.Order, error) {
	id, ok := t.d.externalIDs[externalID]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "order", ID: externalID}
	}
	o := t.d.orders[id]
	o.Items = t.d.orderItems(id)
	return &o, nil
}

func (t *tx) LockOrder(_ context.Context, id string) (*orders.Order, error) {
	if err := t.fault("LockOrder"); err != nil {
		return nil, err
	}
	o, ok := t.d.orders[id]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "order", ID: id}
	}
	return &o, nil
}

func (t *tx) LockItems(_ context.Context, orderID string) ([]orders.OrderItem, error) {
	if err := t.fault("LockItems"); err != nil {
		return nil, err
	}
	return t.d.orderItems(orderID), nil
}

func (t *tx) UpdateOrder(_ context.Context, o *orders.Order) error {
	if err := t.fault("UpdateOrder"); err != nil {
		return err
	}
	cur, ok := t.d.orders[o.ID]
	if !ok {
		return &orders.NotFoundError{Kind: "order", ID: o.ID}
	}
	if (o.PickerID != nil) != o.Status.HoldsPicker() {
		return fmt.Errorf("memstore: picker check violated for order %s in %s", o.ID, o.Status)
	}
	row := *o
	row.Items = nil
	row.Progress = cur.Progress
	t.d.orders[o.ID] = row
	return nil
}

func (t *tx) ClaimOrder(_ context.Context, orderID, pickerID string, at time.Time) (bool, error) {
	if err := t.fault("ClaimOrder"); err != nil {
		return false, err
	}
	o, ok := t.d.orders[orderID]
	if !ok || o.Status != orders.StatusPending || o.PickerID != nil {
		return false, nil
	}
	p, ts := pickerID, at
	o.Status = orders.StatusPicking
	o.PickerID = &p
	o.ClaimedAt = &ts
	o.UpdatedAt = at
	t.d.orders[orderID] = o
	return true, nil
}

func (t *tx) CountActiveOrders(_ context.Context, pickerID string) (int, error) {
	n := 0
	for _, o := range t.d.orders {
		if o.Status == orders.StatusPicking && o.PickerID != nil && *o.PickerID == pickerID {
			n++
		}
	}
	return n, nil
}

func (t *tx) UpdateItem(_ context.Context, it orders.OrderItem) error {
	if err := t.fault("UpdateItem"); err != nil {
		return err
	}
	if _, ok := t.d.items[it.ID]; !ok {
		return &orders.NotFoundError{Kind: "item", ID: it.ID}
	}
	if it.PickedQuantity < 0 || it.PickedQuantity > it.Quantity ||
		it.VerifiedQuantity < 0 || it.VerifiedQuantity > it.PickedQuantity {
		return fmt.Errorf("memstore: item check violated for %s", it.ID)
	}
	t.d.items[it.ID] = it
	return nil
}

func (t *tx) SetProgress(_ context.Context, orderID string, progress int, at time.Time) error {
	if err := t.fault("SetProgress"); err != nil {
		return err
	}
	o, ok := t.d.orders[orderID]
	if !ok {
		return &orders.NotFoundError{Kind: "order", ID: orderID}
	}
	o.Progress = progress
	o.UpdatedAt = at
	t.d.orders[orderID] = o
	return nil
}

func (t *tx) InsertPickTasks(_ context.Context, tasks []orders.PickTask) error {
	if err := t.fault("InsertPickTasks"); err != nil {
		return err
	}
	for _, pt := range tasks {
		t.d.tasks[pt.ID] = pt
		t.d.taskSeq = append(t.d.taskSeq, pt.ID)
	}
	return nil
}

func (t *tx) ListPickTasks(_ context.Context, orderID string) ([]orders.PickTask, error) {
	return t.d.orderTasks(orderID), nil
}

func (t *tx) UpdatePickTask(_ context.Context, pt orders.PickTask) error {
	if _, ok := t.d.tasks[pt.ID]; !ok {
		return &orders.NotFoundError{Kind: "pick task", ID: pt.ID}
	}
	t.d.tasks[pt.ID] = pt
	return nil
}

func (t *tx) DeleteIncompletePickTasks(_ context.Context, orderID string) (int, error) {
	if err := t.fault("DeleteIncompletePickTasks"); err != nil {
		return 0, err
	}
	n := 0
	for id, pt := range t.d.tasks {
		if pt.OrderID == orderID && pt.Status != orders.TaskCompleted {
			delete(t.d.tasks, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) AppendStateChange(_ context.Context, c orders.StateChange) error {
	if err := t.fault("AppendStateChange"); err != nil {
		return err
	}
	t.d.changes = append(t.d.changes, c)
	return nil
}

func (t *tx) ListStateChanges(_ context.Context, orderID string) ([]orders.StateChange, error) {
	return t.d.orderChanges(orderID), nil
}
