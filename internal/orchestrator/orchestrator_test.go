package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/internal/storage/sqlite"
)

type stubAnalyzer struct {
	anomalies       []models.Anomaly
	anomaliesErr    error
	trends          []models.Trend
	trendsErr       error
	recommendations []models.Recommendation
	recsErr         error

	recAnomalies []models.Anomaly
	recTrends    []models.Trend
}

func (s *stubAnalyzer) DetectAnomalies(_ context.Context, _ string, _ []models.StoreSummary, _ map[string][]models.StoreSummary, _ *models.CompanyMetrics) ([]models.Anomaly, error) {
	return s.anomalies, s.anomaliesErr
}

func (s *stubAnalyzer) AnalyzeTrends(_ context.Context, _ string, _ []models.StoreSummary, _ map[string][]models.StoreSummary, _ *models.CompanyMetrics) ([]models.Trend, error) {
	return s.trends, s.trendsErr
}

func (s *stubAnalyzer) GenerateRecommendations(_ context.Context, _ string, anomalies []models.Anomaly, trends []models.Trend, _ *models.CompanyMetrics) ([]models.Recommendation, error) {
	s.recAnomalies = anomalies
	s.recTrends = trends
	return s.recommendations, s.recsErr
}

type stubDispatcher struct {
	subjects []string
	err      error
}

func (d *stubDispatcher) Dispatch(_ context.Context, subject, _ string) error {
	d.subjects = append(d.subjects, subject)
	return d.err
}

type stubExporter struct {
	paths []string
	err   error
	calls int
}

func (e *stubExporter) Export(_ string) ([]string, error) {
	e.calls++
	return e.paths, e.err
}

func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()
	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())
	return db
}

func seedSummary(t *testing.T, db *sqlite.Client, storeID, date string, totalSales float64) {
	t.Helper()
	now := time.Now().UTC()
	summary := &models.StoreSummary{
		StoreID:          storeID,
		Date:             date,
		TotalSales:       totalSales,
		NetSales:         totalSales,
		TransactionCount: 5,
		ItemCount:        5,
		AvgTransaction:   totalSales / 5,
		TopProducts:      []models.ProductSales{{SKU: "SKU-1", Name: "Coffee", Units: 5, Revenue: totalSales}},
		PaymentBreakdown: map[string]float64{"cash": totalSales, "credit": 0, "debit": 0, "gift_card": 0},
		RecordCount:      5,
		SourceRef:        "store_" + storeID + "_" + date + ".json",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	upload := &models.UploadRecord{
		Date:       date,
		StoreID:    storeID,
		UploadedAt: now,
		SourceRef:  summary.SourceRef,
		Status:     "processed",
		TotalSales: totalSales,
	}
	require.NoError(t, db.WriteIngestion(summary, upload))
}

func newTestOrchestrator(db *sqlite.Client, analyzer *stubAnalyzer) (*Orchestrator, *stubDispatcher, *stubExporter) {
	dispatcher := &stubDispatcher{}
	exporter := &stubExporter{paths: []string{"/tmp/export/insights.json"}}
	o := New(db, analyzer, dispatcher, exporter, nil, 7, 30*time.Minute)
	return o, dispatcher, exporter
}

func TestRunSuccess(t *testing.T) {
	const date = "2026-03-15"
	db := newTestDB(t)
	seedSummary(t, db, "0001", date, 100.00)
	seedSummary(t, db, "0002", date, 300.00)

	analyzer := &stubAnalyzer{
		anomalies: []models.Anomaly{{Type: "historical_low", Severity: "warning", StoreID: "0001", Title: "Dip"}},
		trends:    []models.Trend{{Type: "sales_momentum", Direction: "up", Title: "Up"}},
		recommendations: []models.Recommendation{
			{Priority: "high", Category: "operations", Title: "Check store 0001"},
		},
	}
	o, dispatcher, exporter := newTestOrchestrator(db, analyzer)

	result, err := o.Run(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.Empty(t, result.FailedAnalyses)
	assert.Equal(t, 3, result.InsightCount)
	assert.Equal(t, exporter.paths, result.ExportedFiles)

	// Derived tables persisted.
	company, err := db.GetCompanyMetrics(date)
	require.NoError(t, err)
	require.NotNil(t, company)
	assert.Equal(t, 400.00, company.TotalSales)
	assert.Equal(t, "0002", company.BestStore.StoreID)

	products, err := db.GetProductMetrics(date)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 400.00, products[0].Revenue)

	insights, err := db.GetInsights(date)
	require.NoError(t, err)
	assert.Len(t, insights, 3)

	// Run state recorded, report sent, export called.
	run, err := db.GetRun(date)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Len(t, dispatcher.subjects, 1)
	assert.Equal(t, 1, exporter.calls)

	// Recommendations saw the fan-out results.
	assert.Len(t, analyzer.recAnomalies, 1)
	assert.Len(t, analyzer.recTrends, 1)
}

func TestRunSkippedAfterSuccess(t *testing.T) {
	const date = "2026-03-15"
	db := newTestDB(t)
	seedSummary(t, db, "0001", date, 100.00)

	analyzer := &stubAnalyzer{}
	o, _, exporter := newTestOrchestrator(db, analyzer)

	result, err := o.Run(context.Background(), date)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, result.Outcome)

	// Second trigger for the same date is absorbed by the claim.
	result, err = o.Run(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Equal(t, 1, exporter.calls)
}

func TestRunPartialFailure(t *testing.T) {
	const date = "2026-03-15"
	db := newTestDB(t)
	seedSummary(t, db, "0001", date, 100.00)

	analyzer := &stubAnalyzer{
		anomalies: []models.Anomaly{{Type: "peer_outlier", Severity: "info", StoreID: "0001", Title: "Outlier"}},
		trendsErr: errors.New("model timeout"),
		recommendations: []models.Recommendation{
			{Priority: "medium", Category: "inventory", Title: "Restock"},
		},
	}
	o, _, _ := newTestOrchestrator(db, analyzer)

	result, err := o.Run(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.Equal(t, []string{"trends"}, result.FailedAnalyses)
	assert.Equal(t, 2, result.InsightCount)

	// The failed branch contributed nothing to recommendations input.
	assert.Len(t, analyzer.recAnomalies, 1)
	assert.Nil(t, analyzer.recTrends)

	run, err := db.GetRun(date)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunSucceeded, run.Status)
	assert.Equal(t, []string{"trends"}, run.FailedAnalyses)
}

func TestRunAllAnalysesFailed(t *testing.T) {
	const date = "2026-03-15"
	db := newTestDB(t)
	seedSummary(t, db, "0001", date, 100.00)

	analyzer := &stubAnalyzer{
		anomaliesErr: errors.New("down"),
		trendsErr:    errors.New("down"),
		recsErr:      errors.New("down"),
	}
	o, _, _ := newTestOrchestrator(db, analyzer)

	result, err := o.Run(context.Background(), date)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)

	run, dbErr := db.GetRun(date)
	require.NoError(t, dbErr)
	require.NotNil(t, run)
	assert.Equal(t, models.RunFailed, run.Status)

	// A failed run is reclaimable: the next trigger runs again.
	analyzer.anomaliesErr = nil
	analyzer.trendsErr = nil
	analyzer.recsErr = nil
	result, err = o.Run(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
}

func TestRunNoData(t *testing.T) {
	db := newTestDB(t)
	analyzer := &stubAnalyzer{}
	o, dispatcher, _ := newTestOrchestrator(db, analyzer)

	result, err := o.Run(context.Background(), "2026-03-15")
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Contains(t, result.Detail, "no store data")
	assert.Empty(t, dispatcher.subjects)
}

func TestRunExportFailureFailsRun(t *testing.T) {
	const date = "2026-03-15"
	db := newTestDB(t)
	seedSummary(t, db, "0001", date, 100.00)

	analyzer := &stubAnalyzer{}
	dispatcher := &stubDispatcher{}
	exporter := &stubExporter{err: errors.New("disk full")}
	o := New(db, analyzer, dispatcher, exporter, nil, 7, 30*time.Minute)

	result, err := o.Run(context.Background(), date)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
}

func TestRunReportFailureTolerated(t *testing.T) {
	const date = "2026-03-15"
	db := newTestDB(t)
	seedSummary(t, db, "0001", date, 100.00)

	analyzer := &stubAnalyzer{}
	dispatcher := &stubDispatcher{err: errors.New("webhook 500")}
	exporter := &stubExporter{}
	o := New(db, analyzer, dispatcher, exporter, nil, 7, 30*time.Minute)

	result, err := o.Run(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
}

func TestInsightIDsStable(t *testing.T) {
	combined := &models.CombinedInsights{
		Anomalies: []models.Anomaly{{Title: "Dip"}},
		Trends:    []models.Trend{{Title: "Up"}},
	}
	now := time.Now().UTC()

	a := buildInsightRecords("2026-03-15", combined, now)
	b := buildInsightRecords("2026-03-15", combined, now.Add(time.Hour))

	require.Len(t, a, 2)
	require.Len(t, b, 2)
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}

	// Different dates produce different ids.
	c := buildInsightRecords("2026-03-16", combined, now)
	assert.NotEqual(t, a[0].ID, c[0].ID)
}

func TestCombineInsights(t *testing.T) {
	anomalies := []models.Anomaly{{Title: "A"}}
	trends := []models.Trend{{Title: "T"}}
	recs := []models.Recommendation{{Title: "R"}}

	t.Run("all succeeded", func(t *testing.T) {
		combined := combineInsights(anomalies, nil, trends, nil, recs, nil)
		assert.Len(t, combined.Anomalies, 1)
		assert.Len(t, combined.Trends, 1)
		assert.Len(t, combined.Recommendations, 1)
		assert.Empty(t, combined.FailedAnalyses)
	})

	t.Run("failures recorded by name", func(t *testing.T) {
		combined := combineInsights(nil, errors.New("x"), trends, nil, nil, errors.New("y"))
		assert.Empty(t, combined.Anomalies)
		assert.Len(t, combined.Trends, 1)
		assert.Equal(t, []string{"anomalies", "recommendations"}, combined.FailedAnalyses)
	})
}
