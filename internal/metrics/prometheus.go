package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FilesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_files_processed_total",
			Help: "Total upload files successfully ingested",
		},
	)

	FilesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_files_rejected_total",
			Help: "Total upload files rejected by validation",
		},
	)

	RecordsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_records_processed_total",
			Help: "Total transaction records ingested",
		},
	)

	GateChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_gate_checks_total",
			Help: "Completion gate evaluations by result",
		},
		[]string{"complete"},
	)

	AnalysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_analysis_runs_total",
			Help: "Daily analysis runs by outcome",
		},
		[]string{"outcome"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sales_analysis_run_duration_seconds",
			Help:    "Daily analysis run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	AnalysisFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_analysis_failures_total",
			Help: "Individual analysis call failures by analysis",
		},
		[]string{"analysis"},
	)

	ModelTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_model_tokens_used_total",
			Help: "Total model tokens used",
		},
		[]string{"type"},
	)

	InsightsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_insights_persisted_total",
			Help: "Insights persisted by category",
		},
		[]string{"category"},
	)

	ReportDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_report_dispatches_total",
			Help: "Report dispatch attempts by status",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(FilesProcessed)
	prometheus.MustRegister(FilesRejected)
	prometheus.MustRegister(RecordsProcessed)
	prometheus.MustRegister(GateChecks)
	prometheus.MustRegister(AnalysisRuns)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(AnalysisFailures)
	prometheus.MustRegister(ModelTokensUsed)
	prometheus.MustRegister(InsightsPersisted)
	prometheus.MustRegister(ReportDispatches)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
