package orders

import "time"

const (
	DefaultMaxOrdersPerPicker = 10
	DefaultSessionTimeout     = 30 * time.Minute
)

// TransitionContext carries what the validator needs to know about the
// order beyond its status. The orchestrator fills it from locked rows.
type TransitionContext struct {
	PickerID           string // picker taking or holding the order
	PackerID           string
	ActivePickerOrders int // orders the picker currently has in PICKING
	MaxPickerOrders    int // 0 means DefaultMaxOrdersPerPicker
	Items              []OrderItem
	Shipping           ShippingInfo
}

// Decision lists the side effects that must be applied together with the
// status write, in the same transaction.
type Decision struct {
	From             Status
	To               Status
	ReleaseInventory bool
	DeductInventory  bool
	CreatePickTasks  bool
	DiscardPickTasks bool
	ClearPicker      bool
}

// ValidateTransition decides whether from -> to is legal given tc.
func ValidateTransition(from, to Status, tc TransitionContext) (Decision, error) {
	if !from.Valid() {
		return Decision{}, invalid(ReasonInvalidStatus, "unknown current status %q", from)
	}
	if !to.Valid() {
		return Decision{}, invalid(ReasonInvalidStatus, "unknown target status %q", to)
	}
	if from.Terminal() {
		return Decision{}, invalid(ReasonTerminalState, "order is %s, no further transitions allowed", from)
	}
	if !CanTransition(from, to) {
		return Decision{}, invalid(ReasonInvalidTransition, "cannot move order from %s to %s", from, to)
	}

	d := Decision{From: from, To: to}
	switch {
	case from == StatusPending && to == StatusPicking:
		if tc.PickerID == "" {
			return Decision{}, invalid(ReasonMissingAssignee, "a picker is required to start picking")
		}
		limit := tc.MaxPickerOrders
		if limit <= 0 {
			limit = DefaultMaxOrdersPerPicker
		}
		if tc.ActivePickerOrders >= limit {
			return Decision{}, invalid(ReasonCapacityExceeded, "picker already has %d active orders", tc.ActivePickerOrders)
		}
		d.CreatePickTasks = true

	case from == StatusPicking && to == StatusPicked:
		for _, it := range tc.Items {
			if !it.FullyPicked() {
				return Decision{}, invalid(ReasonItemsIncomplete, "item %s (sku %s) picked %d of %d",
					it.ID, it.SKU, it.PickedQuantity, it.Quantity)
			}
		}

	case from == StatusPicked && to == StatusPacking:
		if tc.PickerID == "" {
			return Decision{}, invalid(ReasonMissingAssignee, "order has no assigned picker")
		}
		if tc.PackerID == "" {
			return Decision{}, invalid(ReasonMissingAssignee, "a packer is required to start packing")
		}

	case from == StatusPacking && to == StatusPacked:
		if tc.PackerID == "" {
			return Decision{}, invalid(ReasonMissingAssignee, "order has no assigned packer")
		}
		for _, it := range tc.Items {
			if !it.FullyVerified() {
				return Decision{}, invalid(ReasonItemsUnverified, "item %s (sku %s) verified %d of %d",
					it.ID, it.SKU, it.VerifiedQuantity, it.PickedQuantity)
			}
		}

	case from == StatusPacked && to == StatusShipped:
		if !tc.Shipping.Complete() {
			return Decision{}, invalid(ReasonMissingShippingInfo, "carrier and tracking number are required")
		}
		d.DeductInventory = true

	case to == StatusCancelled:
		d.ReleaseInventory = true
		d.ClearPicker = true
		d.DiscardPickTasks = from == StatusPicking

	case from == StatusPending && to == StatusBackorder:
		d.ReleaseInventory = true

	case from == StatusBackorder && to == StatusPending:
		// re-reservation happens in the ledger and fails on its own
	}
	return d, nil
}

// ValidateRecovery guards the administrative reset of a stuck picking
// session. It is the only way back from PICKING to PENDING.
func ValidateRecovery(from Status, claimedAt *time.Time, now time.Time, timeout time.Duration) (Decision, error) {
	if from != StatusPicking {
		return Decision{}, invalid(ReasonInvalidTransition, "only PICKING orders can be reset, order is %s", from)
	}
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if claimedAt != nil && now.Sub(*claimedAt) < timeout {
		return Decision{}, invalid(ReasonSessionActive, "picking session started %s ago, timeout is %s",
			now.Sub(*claimedAt).Truncate(time.Second), timeout)
	}
	return Decision{
		From:             StatusPicking,
		To:               StatusPending,
		DiscardPickTasks: true,
		ClearPicker:      true,
	}, nil
}
