package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/colony/pkg/types"
)

// SlotSource exposes the fleet's slot table
type SlotSource interface {
	Slots() []types.WorkerSlot
}

// Collector periodically publishes slot table gauges
type Collector struct {
	source   SlotSource
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(source SlotSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect publishes the current slot table once
func (c *Collector) Collect() {
	slots := c.source.Slots()

	withInstance := 0
	for _, slot := range slots {
		if slot.HasInstance() {
			withInstance++
		}
	}

	SlotsTotal.Set(float64(len(slots)))
	SlotsWithInstance.Set(float64(withInstance))
}
