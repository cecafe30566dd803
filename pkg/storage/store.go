package storage

import (
	"github.com/cuemby/colony/pkg/types"
)

// Store persists the worker slot table so recorded instance ids survive
// restarts of the controlling process
type Store interface {
	SaveSlot(slot *types.WorkerSlot) error
	GetSlot(index int) (*types.WorkerSlot, error)
	ListSlots() ([]*types.WorkerSlot, error)

	// Utility
	Close() error
}
