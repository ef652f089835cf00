// Package export writes flat JSON snapshots of the analytics tables for
// downstream BI tooling. Each run replaces the date's snapshot directory.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/internal/storage/sqlite"
	"github.com/salesdata/backend/pkg/logger"
)

type Exporter struct {
	db         *sqlite.Client
	dir        string
	windowDays int
}

func NewExporter(db *sqlite.Client, dir string, windowDays int) *Exporter {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Exporter{
		db:         db,
		dir:        dir,
		windowDays: windowDays,
	}
}

// insightRow is the flattened, single-table shape BI tools can consume
// without unpacking the category-specific payloads.
type insightRow struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Severity    string  `json:"severity,omitempty"`
	Priority    string  `json:"priority,omitempty"`
	StoreID     string  `json:"store_id,omitempty"`
	Direction   string  `json:"direction,omitempty"`
	Value       float64 `json:"value,omitempty"`
}

func flattenInsight(ins models.Insight) insightRow {
	row := insightRow{
		ID:       ins.ID,
		Date:     ins.Date,
		Category: ins.Category,
	}

	switch {
	case ins.Anomaly != nil:
		row.Title = ins.Anomaly.Title
		row.Description = ins.Anomaly.Description
		row.Severity = ins.Anomaly.Severity
		row.StoreID = ins.Anomaly.StoreID
		row.Value = ins.Anomaly.DeviationPercent
	case ins.Trend != nil:
		row.Title = ins.Trend.Title
		row.Description = ins.Trend.Description
		row.Direction = ins.Trend.Direction
		row.Value = ins.Trend.ChangePercent
	case ins.Recommendation != nil:
		row.Title = ins.Recommendation.Title
		row.Description = ins.Recommendation.Description
		row.Priority = ins.Recommendation.Priority
	}

	return row
}

// Export writes the date's snapshot: store summaries and company metrics over
// the trailing window, plus the date's product ranking and insights. Returns
// the paths written.
func (e *Exporter) Export(date string) ([]string, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invalid export date %q: %w", date, err)
	}

	outDir := filepath.Join(e.dir, date)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	var summaries []models.StoreSummary
	var companies []models.CompanyMetrics
	for i := e.windowDays - 1; i >= 0; i-- {
		d := day.AddDate(0, 0, -i).Format("2006-01-02")

		daySummaries, err := e.db.GetStoreSummaries(d)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, daySummaries...)

		company, err := e.db.GetCompanyMetrics(d)
		if err != nil {
			return nil, err
		}
		if company != nil {
			companies = append(companies, *company)
		}
	}

	products, err := e.db.GetProductMetrics(date)
	if err != nil {
		return nil, err
	}

	insights, err := e.db.GetInsights(date)
	if err != nil {
		return nil, err
	}
	rows := make([]insightRow, 0, len(insights))
	for _, ins := range insights {
		rows = append(rows, flattenInsight(ins))
	}

	written := make([]string, 0, 4)
	files := []struct {
		name string
		data interface{}
	}{
		{"store_summaries.json", summaries},
		{"company_metrics.json", companies},
		{"product_metrics.json", products},
		{"insights.json", rows},
	}

	for _, f := range files {
		path := filepath.Join(outDir, f.name)
		if err := writeJSON(path, f.data); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	logger.Info("Export snapshot written",
		zap.String("date", date),
		zap.Int("files", len(written)),
		zap.Int("summary_rows", len(summaries)),
	)

	return written, nil
}

func writeJSON(path string, data interface{}) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
