package reconciler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/colony/pkg/events"
	"github.com/cuemby/colony/pkg/fleet"
	"github.com/cuemby/colony/pkg/log"
	"github.com/cuemby/colony/pkg/metrics"
	"github.com/rs/zerolog"
)

// DefaultInterval is how often the fleet is reconciled when none is configured
const DefaultInterval = 30 * time.Second

// Ensurer converges every slot of a fleet. *fleet.Controller satisfies it.
type Ensurer interface {
	EnsureFleet(ctx context.Context) []fleet.SlotReport
}

// Reconciler periodically ensures every worker slot
type Reconciler struct {
	fleet    Ensurer
	interval time.Duration
	broker   *events.Broker
	logger   zerolog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a new reconciler. broker may be nil.
func NewReconciler(f Ensurer, interval time.Duration, broker *events.Broker) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		fleet:    f,
		interval: interval,
		broker:   broker,
		logger:   log.WithComponent("reconciler"),
		done:     make(chan struct{}),
	}
}

// Start runs one cycle immediately and then one per interval until ctx is
// cancelled or Stop is called
func (r *Reconciler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	go r.run(ctx)
}

// Stop ends the loop and waits for an in-flight cycle to finish
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		cancel := r.cancel
		r.mu.Unlock()
		if cancel == nil {
			close(r.done)
			return
		}
		cancel()
		<-r.done
	})
}

// run is the main reconciliation loop
func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Reconcile(ctx)
	for {
		select {
		case <-ticker.C:
			r.Reconcile(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Reconcile performs one reconciliation cycle and returns the per-slot reports
func (r *Reconciler) Reconcile(ctx context.Context) []fleet.SlotReport {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	reports := r.fleet.EnsureFleet(ctx)

	failed := 0
	for _, report := range reports {
		if report.OK() {
			continue
		}
		failed++
		r.logger.Warn().
			Int("slot", report.Index).
			Err(report.Err).
			Msg("Slot failed to reconcile, retrying next cycle")
	}

	r.logger.Debug().
		Int("slots", len(reports)).
		Int("failed", failed).
		Dur("duration", timer.Duration()).
		Msg("Reconciliation cycle complete")

	if r.broker != nil {
		r.broker.Publish(events.NewEvent(events.EventReconciled, "fleet reconciled", map[string]string{
			"slots":  strconv.Itoa(len(reports)),
			"failed": strconv.Itoa(failed),
		}))
	}
	return reports
}
