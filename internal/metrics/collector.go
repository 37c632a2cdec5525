package metrics

import (
	"time"

	"rere-player/internal/logging"
)

// StatsProvider is implemented by the player session.
type StatsProvider interface {
	Stats() Stats
}

// Stats is a point-in-time summary of the playlist.
type Stats struct {
	Items       int
	LocalItems  int
	NeedsRebind int
	EntryStates int
}

// SizeProvider reports the on-disk size of the durable store.
type SizeProvider interface {
	FileSizes() map[string]int64
}

// Collector periodically copies player and store statistics into gauges.
type Collector struct {
	stats    StatsProvider
	sizes    SizeProvider
	interval time.Duration
	stopChan chan struct{}
}

// NewCollector creates a new metrics collector. Either provider may be nil.
func NewCollector(stats StatsProvider, sizes SizeProvider, interval time.Duration) *Collector {
	return &Collector{
		stats:    stats,
		sizes:    sizes,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.stats != nil {
		s := c.stats.Stats()
		PlaylistItems.WithLabelValues("remote").Set(float64(s.Items - s.LocalItems))
		PlaylistItems.WithLabelValues("local").Set(float64(s.LocalItems))
		PlaylistItems.WithLabelValues("needs_rebind").Set(float64(s.NeedsRebind))
		PlaylistEntryStates.Set(float64(s.EntryStates))
		logging.Debug("Metrics collected: items=%d, local=%d, needsRebind=%d, entryStates=%d",
			s.Items, s.LocalItems, s.NeedsRebind, s.EntryStates)
	}

	if c.sizes != nil {
		for file, size := range c.sizes.FileSizes() {
			StoreSizeBytes.WithLabelValues(file).Set(float64(size))
		}
	}
}
