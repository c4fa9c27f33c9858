package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func picked(qty, got int) OrderItem {
	return OrderItem{ID: "it", SKU: "SKU", Quantity: qty, PickedQuantity: got, VerifiedQuantity: got}
}

func TestValidateTransitionPreconditions(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		to     Status
		tc     TransitionContext
		reason Reason
	}{
		{"claim without picker", StatusPending, StatusPicking, TransitionContext{}, ReasonMissingAssignee},
		{"claim at capacity", StatusPending, StatusPicking, TransitionContext{PickerID: "p", ActivePickerOrders: 10}, ReasonCapacityExceeded},
		{"claim at custom capacity", StatusPending, StatusPicking, TransitionContext{PickerID: "p", ActivePickerOrders: 2, MaxPickerOrders: 2}, ReasonCapacityExceeded},
		{"complete picking short", StatusPicking, StatusPicked, TransitionContext{Items: []OrderItem{picked(2, 2), picked(3, 2)}}, ReasonItemsIncomplete},
		{"start packing without picker", StatusPicked, StatusPacking, TransitionContext{PackerID: "k"}, ReasonMissingAssignee},
		{"start packing without packer", StatusPicked, StatusPacking, TransitionContext{PickerID: "p"}, ReasonMissingAssignee},
		{"complete packing without packer", StatusPacking, StatusPacked, TransitionContext{}, ReasonMissingAssignee},
		{"complete packing unverified", StatusPacking, StatusPacked, TransitionContext{PackerID: "k", Items: []OrderItem{{Quantity: 2, PickedQuantity: 2, VerifiedQuantity: 1}}}, ReasonItemsUnverified},
		{"ship without tracking", StatusPacked, StatusShipped, TransitionContext{Shipping: ShippingInfo{Carrier: "dhl"}}, ReasonMissingShippingInfo},
		{"ship without carrier", StatusPacked, StatusShipped, TransitionContext{Shipping: ShippingInfo{TrackingNumber: "1"}}, ReasonMissingShippingInfo},
		{"unknown current", Status("LOST"), StatusPicking, TransitionContext{}, ReasonInvalidStatus},
		{"unknown target", StatusPending, Status("LOST"), TransitionContext{}, ReasonInvalidStatus},
		{"picked back to picking", StatusPicked, StatusPicking, TransitionContext{PickerID: "p"}, ReasonInvalidTransition},
		{"shipped cancel", StatusShipped, StatusCancelled, TransitionContext{}, ReasonTerminalState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateTransition(tt.from, tt.to, tt.tc)
			require.Error(t, err)
			reason, ok := ReasonOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestValidateTransitionCapacityMessage(t *testing.T) {
	_, err := ValidateTransition(StatusPending, StatusPicking, TransitionContext{PickerID: "p", ActivePickerOrders: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "picker already has 10 active orders")
}

func TestValidateTransitionSideEffects(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		tc   TransitionContext
		want Decision
	}{
		{"claim", StatusPending, StatusPicking, TransitionContext{PickerID: "p", ActivePickerOrders: 9},
			Decision{From: StatusPending, To: StatusPicking, CreatePickTasks: true}},
		{"complete picking", StatusPicking, StatusPicked, TransitionContext{Items: []OrderItem{picked(2, 2)}},
			Decision{From: StatusPicking, To: StatusPicked}},
		{"complete picking without items", StatusPicking, StatusPicked, TransitionContext{},
			Decision{From: StatusPicking, To: StatusPicked}},
		{"ship", StatusPacked, StatusShipped, TransitionContext{Shipping: ShippingInfo{Carrier: "ups", TrackingNumber: "1Z"}},
			Decision{From: StatusPacked, To: StatusShipped, DeductInventory: true}},
		{"cancel pending", StatusPending, StatusCancelled, TransitionContext{},
			Decision{From: StatusPending, To: StatusCancelled, ReleaseInventory: true, ClearPicker: true}},
		{"cancel picking", StatusPicking, StatusCancelled, TransitionContext{},
			Decision{From: StatusPicking, To: StatusCancelled, ReleaseInventory: true, ClearPicker: true, DiscardPickTasks: true}},
		{"backorder", StatusPending, StatusBackorder, TransitionContext{},
			Decision{From: StatusPending, To: StatusBackorder, ReleaseInventory: true}},
		{"restore", StatusBackorder, StatusPending, TransitionContext{},
			Decision{From: StatusBackorder, To: StatusPending}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ValidateTransition(tt.from, tt.to, tt.tc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestValidateRecovery(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-31 * time.Minute)
	fresh := now.Add(-5 * time.Minute)

	d, err := ValidateRecovery(StatusPicking, &old, now, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Decision{From: StatusPicking, To: StatusPending, DiscardPickTasks: true, ClearPicker: true}, d)

	_, err = ValidateRecovery(StatusPicking, &fresh, now, 30*time.Minute)
	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonSessionActive, reason)

	_, err = ValidateRecovery(StatusPicking, &fresh, now, 0)
	reason, _ = ReasonOf(err)
	assert.Equal(t, ReasonSessionActive, reason, "zero timeout falls back to the default")

	_, err = ValidateRecovery(StatusPicked, &old, now, 30*time.Minute)
	reason, _ = ReasonOf(err)
	assert.Equal(t, ReasonInvalidTransition, reason)
}
