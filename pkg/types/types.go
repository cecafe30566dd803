package types

import (
	"fmt"
	"time"
)

// DefaultFleetSize is the number of worker slots a fleet is created with
const DefaultFleetSize = 9

// WorkerSlot is one logical worker position in the fleet
type WorkerSlot struct {
	Index      int
	InstanceID string // Empty when no instance has been recorded
	UpdatedAt  time.Time
}

// Name returns the canonical tag value for the slot (worker<n>)
func (s WorkerSlot) Name() string {
	return SlotName(s.Index)
}

// HasInstance reports whether an instance id has been recorded for the slot
func (s WorkerSlot) HasInstance() bool {
	return s.InstanceID != ""
}

// SlotName returns the canonical tag value for slot n
func SlotName(n int) string {
	return fmt.Sprintf("worker%d", n)
}

// InstanceState is the lifecycle state of a compute instance
type InstanceState string

const (
	InstanceStateAbsent       InstanceState = "absent"
	InstanceStatePending      InstanceState = "pending"
	InstanceStateRunning      InstanceState = "running"
	InstanceStateStopping     InstanceState = "stopping"
	InstanceStateStopped      InstanceState = "stopped"
	InstanceStateShuttingDown InstanceState = "shutting-down"
	InstanceStateTerminated   InstanceState = "terminated"

	// InstanceStateUnknown means the provider returned no description for the instance
	InstanceStateUnknown InstanceState = "unknown"

	// InstanceStateUnrecognized means the provider returned a state outside this set
	InstanceStateUnrecognized InstanceState = "unrecognized"
)

var knownInstanceStates = map[string]InstanceState{
	"pending":       InstanceStatePending,
	"running":       InstanceStateRunning,
	"stopping":      InstanceStateStopping,
	"stopped":       InstanceStateStopped,
	"shutting-down": InstanceStateShuttingDown,
	"terminated":    InstanceStateTerminated,
}

// ParseInstanceState maps a provider state name onto the closed enumeration.
// An empty name maps to unknown, anything unlisted to unrecognized.
func ParseInstanceState(name string) InstanceState {
	if name == "" {
		return InstanceStateUnknown
	}
	if state, ok := knownInstanceStates[name]; ok {
		return state
	}
	return InstanceStateUnrecognized
}

// Transitional reports whether the state is one the provider will leave on its own
func (s InstanceState) Transitional() bool {
	switch s {
	case InstanceStatePending, InstanceStateStopping, InstanceStateShuttingDown:
		return true
	}
	return false
}

// Direction identifies one of the four logical message paths
type Direction string

const (
	DirectionLocalToManager   Direction = "local-manager"
	DirectionManagerToLocal   Direction = "manager-local"
	DirectionManagerToWorkers Direction = "manager-workers"
	DirectionWorkersToManager Direction = "workers-manager"
)

// Directions lists every direction in topology order
var Directions = []Direction{
	DirectionLocalToManager,
	DirectionManagerToLocal,
	DirectionManagerToWorkers,
	DirectionWorkersToManager,
}

// ParseDirection validates a direction name
func ParseDirection(name string) (Direction, error) {
	for _, d := range Directions {
		if string(d) == name {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown direction %q", name)
}

// QueueDescriptor binds a direction to its ordered channel
type QueueDescriptor struct {
	Direction Direction
	Name      string // FIFO queue name, must end in .fifo
	GroupID   string // Message group shared by every message in this direction
}

// DefaultTopology returns the static four-channel topology
func DefaultTopology() []QueueDescriptor {
	return []QueueDescriptor{
		{Direction: DirectionLocalToManager, Name: "LocalManagerQueue.fifo", GroupID: "LocaToManagerGroup"},
		{Direction: DirectionManagerToLocal, Name: "ManagerLocalQueue.fifo", GroupID: "ManagerToLocalGroup"},
		{Direction: DirectionManagerToWorkers, Name: "ManagerWorkersQueue.fifo", GroupID: "ManagerToWorkersGroup"},
		{Direction: DirectionWorkersToManager, Name: "WorkersManagerQueue.fifo", GroupID: "WorkersToManagerGroup"},
	}
}

// Message is a message received from a channel
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string // Delivery token required to acknowledge the message
	Direction     Direction
	ReceivedAt    time.Time
}
