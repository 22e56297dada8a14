package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Export stages.
const (
	StageRender    = "render"
	StageRasterize = "rasterize"
	StageCardPDF   = "card_pdf"
	StageInfoSheet = "info_sheet"
	StageUpload    = "upload"
)

var (
	exportStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "stage_duration_seconds",
			Help:      "打印包各阶段耗时（秒）。",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"stage"},
	)

	exportOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "packs_total",
			Help:      "打印包生成结果计数。",
		},
		[]string{"outcome"},
	)

	assetGateOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assets",
			Name:      "gate_results_total",
			Help:      "Logo 质量检查结果计数。",
		},
		[]string{"result"},
	)
)

// ObserveStage records how long an export stage took since start.
func ObserveStage(stage string, start time.Time) {
	exportStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// CountExport records a finished pack attempt, e.g. "completed", "not_locked",
// "in_progress", "rasterization_failed", "canceled".
func CountExport(outcome string) {
	exportOutcomes.WithLabelValues(outcome).Inc()
}

// CountAssetGate records a logo quality verdict: "optimal", "suboptimal",
// "too_small" or "rejected".
func CountAssetGate(result string) {
	assetGateOutcomes.WithLabelValues(result).Inc()
}
