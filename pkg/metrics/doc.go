/*
Package metrics defines the Prometheus metrics and health endpoints of colony.

All metrics are registered with the default registry at init and exposed by
Handler. NewServeMux mounts /metrics together with the health handlers:

	/health  overall status of every registered component
	/ready   200 only when compute, queue and storage are healthy
	/live    200 while the process is running

# Metrics

Fleet:

	colony_slots_total                       configured worker slots
	colony_slots_with_instance               slots with a recorded instance id
	colony_ensure_total{outcome}             EnsureWorker calls by outcome
	colony_ensure_errors_total{kind}         failed EnsureWorker calls by error kind
	colony_ensure_duration_seconds           time spent in one EnsureWorker call

Relay and files:

	colony_messages_sent_total{direction}
	colony_messages_received_total{direction}
	colony_queue_errors_total{direction,kind}
	colony_object_transfers_total{operation,status}

Reconciliation:

	colony_reconciliation_cycles_total
	colony_reconciliation_duration_seconds

Durations are recorded with Timer:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.EnsureDuration)

Collector refreshes the slot gauges from a SlotSource on an interval so they
stay accurate while the fleet is idle.
*/
package metrics
