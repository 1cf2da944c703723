// Package metrics はパイプラインの Prometheus メトリクスを提供します。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "comic_kit"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// StageRunsTotal はステージごとの実行回数です。
	StageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Total number of pipeline stage executions",
		},
		[]string{"stage", "status"},
	)

	// StageDuration はステージの所要時間です。
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"},
	)

	// ImageAttemptsTotal は画像生成の試行回数です。
	ImageAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "image",
			Name:      "attempts_total",
			Help:      "Total number of image generation attempts",
		},
		[]string{"status"},
	)

	// VerificationFailuresTotal はキャラクター一貫性チェックの不一致回数です。
	VerificationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "verification_failures_total",
			Help:      "Total number of character consistency mismatches",
		},
	)

	// InterventionsTotal は人手による介入の決定回数です。
	InterventionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "panel",
			Name:      "interventions_total",
			Help:      "Total number of human intervention decisions",
		},
		[]string{"choice"},
	)

	// PipelineProgress は現在のパネル生成の進捗率です。
	PipelineProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "progress_percent",
			Help:      "Current panel generation progress (0-100)",
		},
	)
)

// RecordStage はステージの実行結果と所要時間を記録します。
func RecordStage(stage string, duration time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	StageRunsTotal.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordImageAttempt は画像生成1回分の結果を記録します。
func RecordImageAttempt(err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	ImageAttemptsTotal.WithLabelValues(status).Inc()
}
