package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"bits-gateway/internal/config"
	"github.com/VictoriaMetrics/metrics"
)

// Setup starts pushing metrics to cfg.URL. Nothing is pushed when no URL is
// configured; /metrics still serves them.
func Setup(cfg config.Metrics, logger *slog.Logger) {
	if cfg.URL == "" {
		return
	}

	err := metrics.InitPush(cfg.URL, time.Duration(cfg.IntervalMs)*time.Millisecond, cfg.CommonLabels, true)
	if err != nil {
		logger.Error("Error initializing metrics push", "error", err)
	}
}

func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	}
}
