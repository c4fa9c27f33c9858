package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-warehouse-fulfillment/internal/orders"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimOrderCreatesTasksAndAudit(t *testing.T) {
	f := newFixture(t, 0)
	o := f.newOrder(t, 2, 1)

	claimed, err := f.svc.ClaimOrder(context.Background(), o.ID, "picker-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPicking, claimed.Status)
	require.NotNil(t, claimed.PickerID)
	assert.Equal(t, "picker-1", *claimed.PickerID)
	require.NotNil(t, claimed.ClaimedAt)

	tasks, err := f.svc.PickTasks(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for i, task := range tasks {
		assert.Equal(t, o.Items[i].ID, task.OrderItemID)
		assert.Equal(t, orders.TaskPending, task.Status)
		assert.Equal(t, "picker-1", task.PickerID)
	}

	history, err := f.svc.History(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, orders.StateChange{
		ID: history[0].ID, OrderID: o.ID, FromStatus: orders.StatusPending, ToStatus: orders.StatusPicking,
		Kind: orders.KindTransition, Actor: "picker-1", CreatedAt: f.clock.Now(),
	}, history[0])
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	f := newFixture(t, 0)
	o := f.newOrder(t, 1)

	pickers := []string{"picker-a", "picker-b", "picker-c", "picker-d"}
	errs := make([]error, len(pickers))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, p := range pickers {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.ClaimOrder(context.Background(), o.ID, p)
		}(i, p)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var ce *orders.ConflictError
		assert.True(t, errors.As(err, &ce), "loser got %T: %v", err, err)
	}
	assert.Equal(t, 1, wins)

	history, err := f.svc.History(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	tasks, err := f.svc.PickTasks(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestClaimRespectsPickerCapacity(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	var ids []string
	for range 3 {
		ids = append(ids, f.newOrder(t, 1).ID)
	}

	_, err := f.svc.ClaimOrder(ctx, ids[0], "picker-1")
	require.NoError(t, err)
	_, err = f.svc.ClaimOrder(ctx, ids[1], "picker-1")
	require.NoError(t, err)

	_, err = f.svc.ClaimOrder(ctx, ids[2], "picker-1")
	requireReason(t, err, orders.ReasonCapacityExceeded)
	assert.Contains(t, err.Error(), "picker already has 2 active orders")
	assert.Equal(t, orders.StatusPending, f.order(t, ids[2]).Status)

	// another picker is not affected
	_, err = f.svc.ClaimOrder(ctx, ids[2], "picker-2")
	require.NoError(t, err)

	// finishing picking frees a slot
	o := f.order(t, ids[0])
	f.pickAll(t, o)
	_, err = f.svc.CompletePicking(ctx, o.ID)
	require.NoError(t, err)
	extra := f.newOrder(t, 1)
	_, err = f.svc.ClaimOrder(ctx, extra.ID, "picker-1")
	require.NoError(t, err)
}

func TestClaimRequiresPicker(t *testing.T) {
	f := newFixture(t, 0)
	o := f.newOrder(t, 1)
	_, err := f.svc.ClaimOrder(context.Background(), o.ID, "")
	requireReason(t, err, orders.ReasonMissingAssignee)
}

func TestPickProgressAndItemStatus(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	o := f.newOrder(t, 1, 2, 5, 4)
	_, err := f.svc.ClaimOrder(ctx, o.ID, "picker-1")
	require.NoError(t, err)

	it, err := f.svc.PickItem(ctx, o.ID, o.Items[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, orders.ItemFullyPicked, it.Status)
	_, err = f.svc.PickItem(ctx, o.ID, o.Items[1].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 50, f.order(t, o.ID).Progress)

	it, err = f.svc.PickItem(ctx, o.ID, o.Items[2].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, orders.ItemPartialPick, it.Status)
	assert.Equal(t, 60, f.order(t, o.ID).Progress) // (100+100+40+0)/4

	_, err = f.svc.PickItem(ctx, o.ID, o.Items[2].ID, 4)
	requireReason(t, err, orders.ReasonOverPick)
	_, err = f.svc.UndoPick(ctx, o.ID, o.Items[3].ID, 1)
	requireReason(t, err, orders.ReasonUnderPick)
	_, err = f.svc.PickItem(ctx, o.ID, o.Items[3].ID, 0)
	requireReason(t, err, orders.ReasonInvalidQuantity)

	_, err = f.svc.CompletePicking(ctx, o.ID)
	requireReason(t, err, orders.ReasonItemsIncomplete)

	tasks, err := f.svc.PickTasks(ctx, o.ID)
	require.NoError(t, err)
	got := map[string]orders.TaskStatus{}
	for _, task := range tasks {
		got[task.OrderItemID] = task.Status
	}
	assert.Equal(t, map[string]orders.TaskStatus{
		o.Items[0].ID: orders.TaskCompleted,
		o.Items[1].ID: orders.TaskCompleted,
		o.Items[2].ID: orders.TaskInProgress,
		o.Items[3].ID: orders.TaskPending,
	}, got)
}

func TestPickThenUndoRestoresState(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	o := f.newOrder(t, 3, 2)
	_, err := f.svc.ClaimOrder(ctx, o.ID, "picker-1")
	require.NoError(t, err)
	_, err = f.svc.PickItem(ctx, o.ID, o.Items[1].ID, 1)
	require.NoError(t, err)

	before := f.order(t, o.ID)
	tasksBefore, _ := f.svc.PickTasks(ctx, o.ID)

	f.clock.Advance(time.Minute)
	_, err = f.svc.PickItem(ctx, o.ID, o.Items[0].ID, 2)
	require.NoError(t, err)
	assert.NotEqual(t, before.Progress, f.order(t, o.ID).Progress)
	_, err = f.svc.UndoPick(ctx, o.ID, o.Items[0].ID, 2)
	require.NoError(t, err)

	after := f.order(t, o.ID)
	tasksAfter, _ := f.svc.PickTasks(ctx, o.ID)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
	if diff := cmp.Diff(before, after, cmpopts.IgnoreFields(orders.Order{}, "UpdatedAt")); diff != "" {
		t.Errorf("order changed after pick+undo (-before +after):\n%s", diff)
	}
	ignoreTime := cmpopts.IgnoreFields(orders.PickTask{}, "UpdatedAt")
	if diff := cmp.Diff(tasksBefore, tasksAfter, ignoreTime); diff != "" {
		t.Errorf("tasks changed after pick+undo (-before +after):\n%s", diff)
	}
}

func TestProgressChangesAreAnnounced(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	o := f.newOrder(t, 2, 2)
	_, err := f.svc.ClaimOrder(ctx, o.ID, "picker-1")
	require.NoError(t, err)
	claimed := f.order(t, o.ID).UpdatedAt

	f.clock.Advance(time.Second)
	_, err = f.svc.PickItem(ctx, o.ID, o.Items[0].ID, 2)
	require.NoError(t, err)
	got := f.order(t, o.ID)
	assert.Equal(t, 50, got.Progress)
	assert.True(t, got.UpdatedAt.After(claimed), "progress write stamps updated_at")

	// 100+0 -> 100+50: progress moves, status does not
	_, err = f.svc.PickItem(ctx, o.ID, o.Items[1].ID, 1)
	require.NoError(t, err)
	_, err = f.svc.UndoPick(ctx, o.ID, o.Items[1].ID, 1)
	require.NoError(t, err)
	_, err = f.svc.UndoPick(ctx, o.ID, o.Items[0].ID, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{50, 75, 50, 0}, f.notes.progressSeen())
	assert.Len(t, f.notes.all(), 1, "only the claim changed status")
}

func TestItemOperationsRequireStatus(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	o := f.newOrder(t, 1)

	_, err := f.svc.PickItem(ctx, o.ID, o.Items[0].ID, 1)
	requireReason(t, err, orders.ReasonInvalidTransition)
	_, err = f.svc.VerifyItem(ctx, o.ID, o.Items[0].ID, 1)
	requireReason(t, err, orders.ReasonInvalidTransition)
}

func TestPackingVerification(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	o := f.newOrder(t, 2)
	_, err := f.svc.ClaimOrder(ctx, o.ID, "picker-1")
	require.NoError(t, err)
	f.pickAll(t, o)
	_, err = f.svc.CompletePicking(ctx, o.ID)
	require.NoError(t, err)

	_, err = f.svc.StartPacking(ctx, o.ID, "")
	requireReason(t, err, orders.ReasonMissingAssignee)
	packing, err := f.svc.StartPacking(ctx, o.ID, "packer-1")
	require.NoError(t, err)
	require.NotNil(t, packing.PackerID)

	_, err = f.svc.VerifyItem(ctx, o.ID, o.Items[0].ID, 3)
	requireReason(t, err, orders.ReasonInvalidQuantity)
	_, err = f.svc.VerifyItem(ctx, o.ID, o.Items[0].ID, 1)
	require.NoError(t, err)
	_, err = f.svc.CompletePacking(ctx, o.ID)
	requireReason(t, err, orders.ReasonItemsUnverified)

	_, err = f.svc.UndoVerify(ctx, o.ID, o.Items[0].ID, 2)
	requireReason(t, err, orders.ReasonInvalidQuantity)
	it, err := f.svc.VerifyItem(ctx, o.ID, o.Items[0].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, it.VerifiedQuantity)

	packed, err := f.svc.CompletePacking(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPacked, packed.Status)
}
