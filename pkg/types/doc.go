/*
Package types defines the core data structures shared by colony's packages.

It holds the fleet's domain model: worker slots, the closed set of compute
instance states, the four message directions with their queue descriptors,
received messages, and the typed error kinds every component reports.

# Core Types

Fleet:
  - WorkerSlot: one fleet position (0..N-1) and the instance id recorded for it
  - InstanceState: absent, pending, running, stopping, stopped, shutting-down,
    terminated, unknown, unrecognized

Relay:
  - Direction: local-manager, manager-local, manager-workers, workers-manager
  - QueueDescriptor: direction, FIFO queue name and message group id
  - Message: body plus the receipt handle needed to acknowledge it

Errors:
  - Error: kind + operation + wrapped cause
  - ErrorKind: provisioning, query, queue_transport, acknowledgment,
    unsupported_state, invalid_slot, object_store

# Instance States

Provider state names are mapped with ParseInstanceState. Names outside the
known set become InstanceStateUnrecognized instead of falling through, so a new
provider state surfaces as an error rather than a silent no-op:

	types.ParseInstanceState("running")    // InstanceStateRunning
	types.ParseInstanceState("")           // InstanceStateUnknown
	types.ParseInstanceState("hibernated") // InstanceStateUnrecognized

# Topology

DefaultTopology returns the four channels. Every message sent in one direction
carries that direction's group id, which gives strict ordering within the
direction and nothing across directions:

	local-manager    LocalManagerQueue.fifo    LocaToManagerGroup
	manager-local    ManagerLocalQueue.fifo    ManagerToLocalGroup
	manager-workers  ManagerWorkersQueue.fifo  ManagerToWorkersGroup
	workers-manager  WorkersManagerQueue.fifo  WorkersToManagerGroup

# Errors

Callers branch on kinds rather than messages:

	if err := ctrl.EnsureWorker(ctx, 3); types.IsKind(err, types.ErrProvisioning) {
		// retry later
	}
*/
package types
