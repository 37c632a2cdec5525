package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Failed to read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

type fakeStats struct{ s Stats }

func (f fakeStats) Stats() Stats { return f.s }

type fakeSizes map[string]int64

func (f fakeSizes) FileSizes() map[string]int64 { return f }

func TestCollectorCollect(t *testing.T) {
	c := NewCollector(
		fakeStats{Stats{Items: 5, LocalItems: 2, NeedsRebind: 1, EntryStates: 3}},
		fakeSizes{"main": 4096},
		time.Hour,
	)
	c.collect()

	if got := gaugeValue(t, PlaylistItems.WithLabelValues("remote")); got != 3 {
		t.Errorf("Expected 3 remote items, got %v", got)
	}
	if got := gaugeValue(t, PlaylistItems.WithLabelValues("needs_rebind")); got != 1 {
		t.Errorf("Expected 1 item needing rebind, got %v", got)
	}
	if got := gaugeValue(t, PlaylistEntryStates); got != 3 {
		t.Errorf("Expected 3 entry states, got %v", got)
	}
	if got := gaugeValue(t, StoreSizeBytes.WithLabelValues("main")); got != 4096 {
		t.Errorf("Expected store size 4096, got %v", got)
	}
}

func TestCollectorNilProviders(t *testing.T) {
	c := NewCollector(nil, nil, time.Hour)
	c.collect() // must not panic
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fakeStats{}, nil, 10*time.Millisecond)
	c.Start()
	time.Sleep(25 * time.Millisecond)
	c.Stop()
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()

	var m dto.Metric
	if err := RebindOutcomes.WithLabelValues("silent", "fast_path").Write(&m); err != nil {
		t.Errorf("Expected a registered series, got %v", err)
	}
}
