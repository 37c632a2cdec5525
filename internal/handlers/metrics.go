package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rere-player/internal/logging"
)

type promLogger struct{}

func (promLogger) Println(v ...any) {
	logging.Warn("metrics: %v", v)
}

// MetricsHandler returns the Prometheus metrics handler
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:      promLogger{},
			ErrorHandling: promhttp.ContinueOnError,
		}),
	)
}
