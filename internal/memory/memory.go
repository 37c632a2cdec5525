// Package memory sets the Go heap limit from the container memory limit.
//
// FFmpeg runs as child processes outside the Go heap, so only part of the
// container limit is given to Go.
package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/dustin/go-humanize"

	"rere-player/internal/logging"
)

// DefaultRatio is the share of the container limit given to the Go heap.
const DefaultRatio = 0.75

// Sources of the applied limit.
const (
	SourceNone        = "none"
	SourceGOMEMLIMIT  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
)

// Result describes what ConfigureFromEnv did.
type Result struct {
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// Configured reports whether a limit is in effect.
func (r Result) Configured() bool {
	return r.Source != SourceNone
}

// limitFor returns the heap limit for a container limit and ratio. Ratios
// outside (0, 1] fall back to DefaultRatio.
func limitFor(containerLimit int64, ratio float64) (int64, float64) {
	if math.IsNaN(ratio) || ratio <= 0 || ratio > 1 {
		ratio = DefaultRatio
	}
	return int64(float64(containerLimit) * ratio), ratio
}

// ConfigureFromEnv applies MEMORY_LIMIT (bytes, e.g. from the Kubernetes
// downward API) times MEMORY_RATIO as GOMEMLIMIT. An explicit GOMEMLIMIT
// wins and is only reported. Call early in main.
func ConfigureFromEnv() Result {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		res := Result{Source: SourceNone}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			res = Result{Source: SourceGOMEMLIMIT, GoMemLimit: limit}
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return res
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		logging.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left unchanged")
		return Result{Source: SourceNone}
	}
	containerLimit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || containerLimit <= 0 {
		logging.Warn("Ignoring invalid MEMORY_LIMIT %q", raw)
		return Result{Source: SourceNone}
	}

	ratio := DefaultRatio
	if r := os.Getenv("MEMORY_RATIO"); r != "" {
		parsed, err := strconv.ParseFloat(r, 64)
		if err != nil || parsed <= 0 || parsed > 1 {
			logging.Warn("MEMORY_RATIO %q must be in (0, 1], using %.2f", r, DefaultRatio)
		} else {
			ratio = parsed
		}
	}

	limit, ratio := limitFor(containerLimit, ratio)
	debug.SetMemoryLimit(limit)
	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s)",
		humanize.IBytes(uint64(limit)), ratio*100, humanize.IBytes(uint64(containerLimit)))

	return Result{Source: SourceMemoryLimit, ContainerLimit: containerLimit, GoMemLimit: limit, Ratio: ratio}
}
