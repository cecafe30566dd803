package fleet

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/colony/pkg/compute"
	"github.com/cuemby/colony/pkg/events"
	"github.com/cuemby/colony/pkg/log"
	"github.com/cuemby/colony/pkg/metrics"
	"github.com/cuemby/colony/pkg/storage"
	"github.com/cuemby/colony/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Lifecycle reconciles the compute instance behind one slot.
// *compute.Manager satisfies it.
type Lifecycle interface {
	Ensure(ctx context.Context, index int) (compute.Result, error)
}

// Relay moves message bodies over the directional channels.
// *queue.Coordinator satisfies it.
type Relay interface {
	Send(ctx context.Context, dir types.Direction, body string) (string, error)
	ReceiveOne(ctx context.Context, dir types.Direction, wait time.Duration) (*types.Message, error)
	Receive(ctx context.Context, dir types.Direction) (*types.Message, error)
}

// Objects transfers files to and from the shared bucket.
// *objectstore.Store satisfies it.
type Objects interface {
	Put(ctx context.Context, key, localPath string) error
	Get(ctx context.Context, key, localPath string) error
}

// Config holds controller configuration
type Config struct {
	Size        int    // Number of worker slots, defaults to types.DefaultFleetSize
	WorkerKey   string // Object key of the worker program
	FilesDir    string // Local directory downloads are written to
	Parallelism int    // Slots ensured concurrently by EnsureFleet, defaults to Size
}

// Deps are the collaborators a controller is built from. Store and Events
// are optional.
type Deps struct {
	Compute Lifecycle
	Queues  Relay
	Objects Objects
	Store   storage.Store
	Events  *events.Broker
}

// slot pairs a worker slot with the locks guarding it. ensureMu serializes
// EnsureWorker for the index; mu guards data only so snapshots never wait on
// a cloud call.
type slot struct {
	ensureMu sync.Mutex

	mu   sync.RWMutex
	data types.WorkerSlot
}

// SlotReport is the result of ensuring one slot during EnsureFleet
type SlotReport struct {
	Index      int
	InstanceID string
	Outcome    compute.Outcome
	Err        error
}

// OK reports whether the slot was ensured without error
func (r SlotReport) OK() bool {
	return r.Err == nil
}

// Controller owns the worker slot table and is the single entry point for
// fleet lifecycle, message relay and file transfer
type Controller struct {
	cfg     Config
	deps    Deps
	slots   map[int]*slot
	logger  zerolog.Logger
	closeMu sync.Mutex
	closed  bool
}

// NewController builds a controller and loads any persisted slot records
func NewController(cfg Config, deps Deps) (*Controller, error) {
	if cfg.Size == 0 {
		cfg.Size = types.DefaultFleetSize
	}
	if cfg.Size < 0 {
		return nil, fmt.Errorf("fleet size must be positive, got %d", cfg.Size)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = cfg.Size
	}
	if deps.Compute == nil || deps.Queues == nil || deps.Objects == nil {
		return nil, fmt.Errorf("fleet controller requires compute, queue and object store clients")
	}

	c := &Controller{
		cfg:    cfg,
		deps:   deps,
		slots:  make(map[int]*slot, cfg.Size),
		logger: log.WithComponent("fleet"),
	}
	for i := 0; i < cfg.Size; i++ {
		c.slots[i] = &slot{data: types.WorkerSlot{Index: i}}
	}

	if deps.Store != nil {
		stored, err := deps.Store.ListSlots()
		if err != nil {
			return nil, fmt.Errorf("failed to load slots: %w", err)
		}
		for _, ws := range stored {
			s, ok := c.slots[ws.Index]
			if !ok {
				c.logger.Warn().Int("slot", ws.Index).Msg("Ignoring stored slot outside the fleet")
				continue
			}
			s.data = *ws
		}
	}

	metrics.SlotsTotal.Set(float64(cfg.Size))
	c.updateSlotGauge()
	return c, nil
}

// Size returns the number of worker slots
func (c *Controller) Size() int {
	return c.cfg.Size
}

// Slots returns a snapshot of the slot table ordered by index
func (c *Controller) Slots() []types.WorkerSlot {
	out := make([]types.WorkerSlot, 0, len(c.slots))
	for _, s := range c.slots {
		s.mu.RLock()
		out = append(out, s.data)
		s.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Slot returns the current record of slot n
func (c *Controller) Slot(n int) (types.WorkerSlot, error) {
	s, err := c.lookup("slot", n)
	if err != nil {
		return types.WorkerSlot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data, nil
}

func (c *Controller) lookup(op string, n int) (*slot, error) {
	s, ok := c.slots[n]
	if !ok {
		return nil, types.Errorf(types.ErrInvalidSlot, op, "slot %d outside fleet of %d", n, c.cfg.Size)
	}
	return s, nil
}

// EnsureWorker makes slot n converge on one usable instance: a running
// instance is left alone, a stopped one is started, a missing or terminated
// one is replaced. Calls for the same index are serialized. A new instance id
// is recorded even when a later provisioning step fails.
func (c *Controller) EnsureWorker(ctx context.Context, n int) error {
	_, err := c.ensure(ctx, n)
	return err
}

// EnsureWorkerOK is EnsureWorker reduced to success or failure
func (c *Controller) EnsureWorkerOK(ctx context.Context, n int) bool {
	return c.EnsureWorker(ctx, n) == nil
}

// EnsureFleet ensures every slot, continuing past failed ones. Reports are
// ordered by index.
func (c *Controller) EnsureFleet(ctx context.Context) []SlotReport {
	reports := make([]SlotReport, c.cfg.Size)

	var g errgroup.Group
	g.SetLimit(c.cfg.Parallelism)
	for i := 0; i < c.cfg.Size; i++ {
		i := i
		g.Go(func() error {
			res, err := c.ensure(ctx, i)
			reports[i] = SlotReport{
				Index:      i,
				InstanceID: res.InstanceID,
				Outcome:    res.Outcome,
				Err:        err,
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range reports {
		if !r.OK() {
			failed++
		}
	}
	c.logger.Info().Int("slots", c.cfg.Size).Int("failed", failed).Msg("Fleet ensured")
	return reports
}

func (c *Controller) ensure(ctx context.Context, n int) (compute.Result, error) {
	s, err := c.lookup("ensure worker", n)
	if err != nil {
		metrics.EnsureErrorsTotal.WithLabelValues(string(types.ErrInvalidSlot)).Inc()
		return compute.Result{Outcome: compute.OutcomeFailed}, err
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	logger := log.WithSlot(n)
	timer := metrics.NewTimer()
	res, err := c.deps.Compute.Ensure(ctx, n)
	timer.ObserveDuration(metrics.EnsureDuration)

	if res.InstanceID != "" {
		c.record(s, res.InstanceID)
	}

	metrics.EnsureTotal.WithLabelValues(string(res.Outcome)).Inc()
	if err != nil {
		kind := types.KindOf(err)
		if kind == "" {
			kind = "unknown"
		}
		metrics.EnsureErrorsTotal.WithLabelValues(string(kind)).Inc()
		logger.Error().Err(err).Str("instance_id", res.InstanceID).Msg("Failed to ensure worker")
	} else {
		logger.Debug().Str("outcome", string(res.Outcome)).Str("instance_id", res.InstanceID).Msg("Worker ensured")
	}

	c.publishOutcome(n, res, err)
	return res, err
}

// record stores a newly observed instance id and persists it
func (c *Controller) record(s *slot, instanceID string) {
	s.mu.Lock()
	if s.data.InstanceID == instanceID {
		s.mu.Unlock()
		return
	}
	s.data.InstanceID = instanceID
	s.data.UpdatedAt = time.Now()
	snapshot := s.data
	s.mu.Unlock()

	c.updateSlotGauge()

	if c.deps.Store == nil {
		return
	}
	if err := c.deps.Store.SaveSlot(&snapshot); err != nil {
		logger := log.WithSlot(snapshot.Index)
		logger.Warn().Err(err).Msg("Failed to persist slot")
	}
}

func (c *Controller) updateSlotGauge() {
	count := 0
	for _, s := range c.slots {
		s.mu.RLock()
		if s.data.HasInstance() {
			count++
		}
		s.mu.RUnlock()
	}
	metrics.SlotsWithInstance.Set(float64(count))
}

func (c *Controller) publishOutcome(n int, res compute.Result, err error) {
	if c.deps.Events == nil {
		return
	}

	var eventType events.EventType
	switch {
	case err != nil:
		eventType = events.EventWorkerFailed
	case res.Outcome == compute.OutcomeProvisioned:
		eventType = events.EventWorkerProvisioned
	case res.Outcome == compute.OutcomeStarted:
		eventType = events.EventWorkerStarted
	case res.Outcome == compute.OutcomeReplaced:
		eventType = events.EventWorkerReplaced
	case res.Outcome == compute.OutcomeUnsupported:
		eventType = events.EventWorkerUnsupported
	default:
		return
	}

	metadata := map[string]string{
		"slot":        strconv.Itoa(n),
		"instance_id": res.InstanceID,
		"state":       string(res.State),
	}
	message := fmt.Sprintf("%s %s", types.SlotName(n), res.Outcome)
	if err != nil {
		metadata["error"] = err.Error()
		message = fmt.Sprintf("%s failed: %v", types.SlotName(n), err)
	}
	c.deps.Events.Publish(events.NewEvent(eventType, message, metadata))
}

// Close releases the slot store. The controller must not be used afterwards.
func (c *Controller) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.deps.Store != nil {
		return c.deps.Store.Close()
	}
	return nil
}
