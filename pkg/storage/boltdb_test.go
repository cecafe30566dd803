package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/cuemby/colony/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndGetSlot(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.SaveSlot(&types.WorkerSlot{Index: 3, InstanceID: "i-0abc", UpdatedAt: now}))

	slot, err := store.GetSlot(3)
	require.NoError(t, err)
	assert.Equal(t, 3, slot.Index)
	assert.Equal(t, "i-0abc", slot.InstanceID)
	assert.True(t, now.Equal(slot.UpdatedAt))

	// Upsert
	require.NoError(t, store.SaveSlot(&types.WorkerSlot{Index: 3, InstanceID: "i-0def"}))
	slot, err = store.GetSlot(3)
	require.NoError(t, err)
	assert.Equal(t, "i-0def", slot.InstanceID)
}

func TestGetSlotNotFound(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetSlot(8)
	assert.Error(t, err)
}

func TestSaveSlotRejectsNegativeIndex(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.SaveSlot(&types.WorkerSlot{Index: -1}))
}

func TestListSlotsOrderedByIndex(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	// 10 sorts after 2 numerically but before it as a decimal string
	for _, idx := range []int{10, 2, 0} {
		require.NoError(t, store.SaveSlot(&types.WorkerSlot{Index: idx}))
	}

	slots, err := store.ListSlots()
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, 0, slots[0].Index)
	assert.Equal(t, 2, slots[1].Index)
	assert.Equal(t, 10, slots[2].Index)
}

func TestSlotsSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveSlot(&types.WorkerSlot{Index: 1, InstanceID: "i-0123"}))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	slot, err := reopened.GetSlot(1)
	require.NoError(t, err)
	assert.Equal(t, "i-0123", slot.InstanceID)
}

func TestOpenFailsWhileAnotherStoreHoldsLock(t *testing.T) {
	dir := t.TempDir()

	holder, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer holder.Close()

	// flock conflicts across open file descriptions, so a second open in
	// this process contends exactly like a second colony process would.
	done := make(chan error, 1)
	go func() {
		second, err := OpenBoltStore(dir, 100*time.Millisecond)
		if err == nil {
			second.Close()
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLocked))
		assert.Contains(t, err.Error(), dir)
	case <-time.After(5 * time.Second):
		t.Fatal("second open blocked instead of timing out")
	}
}

func TestOpenSucceedsAfterHolderCloses(t *testing.T) {
	dir := t.TempDir()

	holder, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, holder.Close())

	store, err := OpenBoltStore(dir, 100*time.Millisecond)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
