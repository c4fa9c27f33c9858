// Package memstore is an in-memory orders.Store. Each transaction holds the
// store lock for its whole duration and works on a copy of the data that
// replaces the live copy only on commit, so transactions are serializable
// and a failed one leaves nothing behind.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
)

var _ orders.Store = (*Store)(nil)

type invKey struct{ sku, bin string }

type data struct {
	orders      map[string]orders.Order
	orderSeq    []string
	items       map[string]orders.OrderItem
	itemsByOrd  map[string][]string
	externalIDs map[string]string
	inventory   map[invKey]orders.InventoryUnit
	tasks       map[string]orders.PickTask
	taskSeq     []string
	changes     []orders.StateChange
}

func newData() *data {
	return &data{
		orders:      map[string]orders.Order{},
		items:       map[string]orders.OrderItem{},
		itemsByOrd:  map[string][]string{},
		externalIDs: map[string]string{},
		inventory:   map[invKey]orders.InventoryUnit{},
		tasks:       map[string]orders.PickTask{},
	}
}

func (d *data) clone() *data {
	c := &data{
		orders:      maps.Clone(d.orders),
		orderSeq:    slices.Clone(d.orderSeq),
		items:       maps.Clone(d.items),
		itemsByOrd:  make(map[string][]string, len(d.itemsByOrd)),
		externalIDs: maps.Clone(d.externalIDs),
		inventory:   maps.Clone(d.inventory),
		tasks:       maps.Clone(d.tasks),
		taskSeq:     slices.Clone(d.taskSeq),
		changes:     slices.Clone(d.changes),
	}
	for k, v := range d.itemsByOrd {
		c.itemsByOrd[k] = slices.Clone(v)
	}
	return c
}

type Store struct {
	mu     sync.Mutex
	d      *data
	faults map[string]error
}

func New() *Store {
	return &Store{d: newData(), faults: map[string]error{}}
}

// InjectFault makes the named Tx method fail with err until cleared with a
// nil err. Used to exercise rollback paths.
func (s *Store) InjectFault(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{d: s.d.clone(), faults: s.faults}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.d = t.d
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.d.orders[id]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "order", ID: id}
	}
	o.Items = s.d.orderItems(id)
	return &o, nil
}

func (s *Store) GetInventory(_ context.Context, sku, bin string) (*orders.InventoryUnit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.d.inventory[invKey{sku, bin}]
	if !ok {
		return nil, &orders.NotFoundError{Kind: "inventory", ID: sku + "@" + bin}
	}
	return &u, nil
}

func (s *Store) ListPickTasks(_ context.Context, orderID string) ([]orders.PickTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.orderTasks(orderID), nil
}

func (s *Store) ListStateChanges(_ context.Context, orderID string) ([]orders.StateChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.orderChanges(orderID), nil
}

func (s *Store) ListStuckOrders(_ context.Context, claimedBefore time.Time) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, id := range s.d.orderSeq {
		o := s.d.orders[id]
		if o.Status == orders.StatusPicking && o.ClaimedAt != nil && o.ClaimedAt.Before(claimedBefore) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (d *data) orderItems(orderID string) []orders.OrderItem {
	ids := d.itemsByOrd[orderID]
	out := make([]orders.OrderItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.items[id])
	}
	return out
}

func (d *data) orderTasks(orderID string) []orders.PickTask {
	var out []orders.PickTask
	for _, id := range d.taskSeq {
		if t, ok := d.tasks[id]; ok && t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out
}

func (d *data) orderChanges(orderID string) []orders.StateChange {
	var out []orders.StateChange
	for _, c := range d.changes {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out
}
