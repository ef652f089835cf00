package orchestrator

import (
	"fmt"
	"time"

	"github.com/salesdata/backend/internal/metrics"
	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/pkg/utils"
)

const (
	analysisAnomalies       = "anomalies"
	analysisTrends          = "trends"
	analysisRecommendations = "recommendations"
)

// combineInsights merges the three analysis branches. A failed branch
// contributes nothing but its name; successful results are kept even when a
// sibling failed.
func combineInsights(anomalies []models.Anomaly, anomErr error, trends []models.Trend, trendErr error, recommendations []models.Recommendation, recErr error) *models.CombinedInsights {
	combined := &models.CombinedInsights{}

	if anomErr != nil {
		combined.FailedAnalyses = append(combined.FailedAnalyses, analysisAnomalies)
	} else {
		combined.Anomalies = anomalies
	}

	if trendErr != nil {
		combined.FailedAnalyses = append(combined.FailedAnalyses, analysisTrends)
	} else {
		combined.Trends = trends
	}

	if recErr != nil {
		combined.FailedAnalyses = append(combined.FailedAnalyses, analysisRecommendations)
	} else {
		combined.Recommendations = recommendations
	}

	return combined
}

// insightID derives a stable identifier scoped to (date, category) so rerun
// output replaces rather than duplicates prior rows.
func insightID(date, category string, index int, title string) string {
	return fmt.Sprintf("%s-%s-%s", category, date,
		utils.ShortID(fmt.Sprintf("%s|%s|%d|%s", date, category, index, title)))
}

func buildInsightRecords(date string, combined *models.CombinedInsights, now time.Time) []models.Insight {
	records := make([]models.Insight, 0,
		len(combined.Anomalies)+len(combined.Trends)+len(combined.Recommendations))

	for i := range combined.Anomalies {
		a := combined.Anomalies[i]
		records = append(records, models.Insight{
			ID:        insightID(date, models.InsightAnomaly, i, a.Title),
			Date:      date,
			Category:  models.InsightAnomaly,
			CreatedAt: now,
			Anomaly:   &a,
		})
		metrics.InsightsPersisted.WithLabelValues(models.InsightAnomaly).Inc()
	}

	for i := range combined.Trends {
		t := combined.Trends[i]
		records = append(records, models.Insight{
			ID:        insightID(date, models.InsightTrend, i, t.Title),
			Date:      date,
			Category:  models.InsightTrend,
			CreatedAt: now,
			Trend:     &t,
		})
		metrics.InsightsPersisted.WithLabelValues(models.InsightTrend).Inc()
	}

	for i := range combined.Recommendations {
		r := combined.Recommendations[i]
		records = append(records, models.Insight{
			ID:             insightID(date, models.InsightRecommendation, i, r.Title),
			Date:           date,
			Category:       models.InsightRecommendation,
			CreatedAt:      now,
			Recommendation: &r,
		})
		metrics.InsightsPersisted.WithLabelValues(models.InsightRecommendation).Inc()
	}

	return records
}
