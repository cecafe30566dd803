/*
Package log provides structured logging for colony using zerolog.

A single package-level Logger is configured once with Init and shared by every
package. Components derive child loggers carrying their context fields instead
of repeating them on each call.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

	computeLog := log.WithComponent("compute")
	computeLog.Info().Str("instance_id", id).Msg("Instance started")

	slotLog := log.WithSlot(3) // slot=3 slot_name=worker3
	slotLog.Warn().Str("state", "pending").Msg("Instance in unsupported state")

	queueLog := log.WithQueue("manager-workers", "ManagerWorkersQueue.fifo")
	queueLog.Debug().Msg("Message sent")

Console output is used when JSONOutput is false:

	2026-10-19T10:30:00Z INF Instance started component=compute instance_id=i-0abc

Logs go to stderr by default so command output on stdout (received message
bodies, slot tables) stays machine readable.
*/
package log
