// Package orchestrator owns the daily analysis run: claim the date, derive
// company and product metrics, fan out the model analyses, combine and
// persist the insights, then report and export. The run-state claim makes
// concurrent triggers for the same date collapse to one run.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/analytics"
	"github.com/salesdata/backend/internal/events"
	"github.com/salesdata/backend/internal/metrics"
	"github.com/salesdata/backend/internal/report"
	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/internal/storage/sqlite"
	"github.com/salesdata/backend/pkg/logger"
)

// Analyzer is the model-backed analysis surface the run fans out over.
type Analyzer interface {
	DetectAnomalies(ctx context.Context, date string, summaries []models.StoreSummary, history map[string][]models.StoreSummary, company *models.CompanyMetrics) ([]models.Anomaly, error)
	AnalyzeTrends(ctx context.Context, date string, summaries []models.StoreSummary, history map[string][]models.StoreSummary, company *models.CompanyMetrics) ([]models.Trend, error)
	GenerateRecommendations(ctx context.Context, date string, anomalies []models.Anomaly, trends []models.Trend, company *models.CompanyMetrics) ([]models.Recommendation, error)
}

type Exporter interface {
	Export(date string) ([]string, error)
}

const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

type Result struct {
	Date           string   `json:"date"`
	Outcome        string   `json:"outcome"`
	Detail         string   `json:"detail,omitempty"`
	FailedAnalyses []string `json:"failed_analyses,omitempty"`
	InsightCount   int      `json:"insight_count"`
	ExportedFiles  []string `json:"exported_files,omitempty"`
}

type Orchestrator struct {
	db          *sqlite.Client
	analyzer    Analyzer
	dispatcher  report.Dispatcher
	exporter    Exporter
	bus         *events.Bus
	historyDays int
	takeover    time.Duration
}

func New(db *sqlite.Client, analyzer Analyzer, dispatcher report.Dispatcher, exporter Exporter, bus *events.Bus, historyDays int, takeover time.Duration) *Orchestrator {
	if historyDays <= 0 {
		historyDays = 7
	}
	if takeover <= 0 {
		takeover = 30 * time.Minute
	}
	return &Orchestrator{
		db:          db,
		analyzer:    analyzer,
		dispatcher:  dispatcher,
		exporter:    exporter,
		bus:         bus,
		historyDays: historyDays,
		takeover:    takeover,
	}
}

// Run executes the full analysis pipeline for one date. A date whose run has
// already succeeded, or is currently held by another worker, is skipped.
// Model-analysis failures degrade the run; storage and export failures fail
// it.
func (o *Orchestrator) Run(ctx context.Context, date string) (*Result, error) {
	claimed, err := o.db.ClaimRun(date, o.takeover)
	if err != nil {
		return nil, err
	}
	if !claimed {
		metrics.AnalysisRuns.WithLabelValues(OutcomeSkipped).Inc()
		logger.Info("Analysis run skipped, already claimed or succeeded", zap.String("date", date))
		return &Result{
			Date:    date,
			Outcome: OutcomeSkipped,
			Detail:  "run already succeeded or in progress",
		}, nil
	}

	start := time.Now()
	logger.Info("Analysis run started", zap.String("date", date))

	result, err := o.execute(ctx, date)
	metrics.RunDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		detail := err.Error()
		if ferr := o.db.FinishRun(date, models.RunFailed, detail, nil); ferr != nil {
			logger.Error("Failed to record run failure", zap.String("date", date), zap.Error(ferr))
		}
		metrics.AnalysisRuns.WithLabelValues(OutcomeFailed).Inc()
		o.publishFinished(date, OutcomeFailed, detail)
		logger.Error("Analysis run failed", zap.String("date", date), zap.Error(err))
		return &Result{Date: date, Outcome: OutcomeFailed, Detail: detail}, err
	}

	if ferr := o.db.FinishRun(date, models.RunSucceeded, result.Detail, result.FailedAnalyses); ferr != nil {
		return nil, ferr
	}
	metrics.AnalysisRuns.WithLabelValues(OutcomeSucceeded).Inc()
	o.publishFinished(date, OutcomeSucceeded, result.Detail)

	logger.Info("Analysis run complete",
		zap.String("date", date),
		zap.Int("insight_count", result.InsightCount),
		zap.Strings("failed_analyses", result.FailedAnalyses),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, date string) (*Result, error) {
	summaries, err := o.db.GetStoreSummaries(date)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("no store data for date %s", date)
	}

	now := time.Now().UTC()

	company := analytics.ComputeCompanyMetrics(date, summaries, now)
	if err := o.db.UpsertCompanyMetrics(company); err != nil {
		return nil, err
	}

	products := analytics.AggregateProducts(date, summaries)
	if err := o.db.ReplaceProductMetrics(date, products); err != nil {
		return nil, err
	}

	history, err := o.loadHistory(date)
	if err != nil {
		return nil, err
	}

	// Anomalies and trends run in parallel. Each branch keeps its own error:
	// one failing must not cancel the other, so plain goroutines instead of
	// an errgroup.
	var wg sync.WaitGroup
	var anomalies []models.Anomaly
	var trends []models.Trend
	var anomErr, trendErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		anomalies, anomErr = o.analyzer.DetectAnomalies(ctx, date, summaries, history, company)
		if anomErr != nil {
			metrics.AnalysisFailures.WithLabelValues(analysisAnomalies).Inc()
			logger.Error("Anomaly detection failed", zap.String("date", date), zap.Error(anomErr))
		}
	}()
	go func() {
		defer wg.Done()
		trends, trendErr = o.analyzer.AnalyzeTrends(ctx, date, summaries, history, company)
		if trendErr != nil {
			metrics.AnalysisFailures.WithLabelValues(analysisTrends).Inc()
			logger.Error("Trend analysis failed", zap.String("date", date), zap.Error(trendErr))
		}
	}()
	wg.Wait()

	// Recommendations consume whatever the fan-out produced; failed branches
	// contribute empty input.
	recInput := anomalies
	if anomErr != nil {
		recInput = nil
	}
	trendInput := trends
	if trendErr != nil {
		trendInput = nil
	}

	recommendations, recErr := o.analyzer.GenerateRecommendations(ctx, date, recInput, trendInput, company)
	if recErr != nil {
		metrics.AnalysisFailures.WithLabelValues(analysisRecommendations).Inc()
		logger.Error("Recommendation generation failed", zap.String("date", date), zap.Error(recErr))
	}

	combined := combineInsights(anomalies, anomErr, trends, trendErr, recommendations, recErr)
	if len(combined.FailedAnalyses) == 3 {
		return nil, fmt.Errorf("all analyses failed for date %s", date)
	}

	records := buildInsightRecords(date, combined, now)
	if err := o.db.ReplaceInsights(date, records); err != nil {
		return nil, err
	}

	subject, body := report.Format(date, company, products, combined)
	if err := o.dispatcher.Dispatch(ctx, subject, body); err != nil {
		logger.Error("Report dispatch failed", zap.String("date", date), zap.Error(err))
	}

	exported, err := o.exporter.Export(date)
	if err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("%d insights from %d stores", len(records), len(summaries))
	return &Result{
		Date:           date,
		Outcome:        OutcomeSucceeded,
		Detail:         detail,
		FailedAnalyses: combined.FailedAnalyses,
		InsightCount:   len(records),
		ExportedFiles:  exported,
	}, nil
}

// loadHistory collects per-store summaries for the trailing window, newest
// first excluded: days date-1 through date-historyDays.
func (o *Orchestrator) loadHistory(date string) (map[string][]models.StoreSummary, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invalid run date %q: %w", date, err)
	}

	history := make(map[string][]models.StoreSummary)
	for i := 1; i <= o.historyDays; i++ {
		d := day.AddDate(0, 0, -i).Format("2006-01-02")
		summaries, err := o.db.GetStoreSummaries(d)
		if err != nil {
			return nil, err
		}
		for _, s := range summaries {
			history[s.StoreID] = append(history[s.StoreID], s)
		}
	}

	return history, nil
}

func (o *Orchestrator) publishFinished(date, outcome, detail string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{
		Type:   events.RunFinished,
		Date:   date,
		Detail: fmt.Sprintf("%s: %s", outcome, detail),
	})
}
