package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdata/backend/internal/storage/models"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		expected string
	}{
		{"bare json", `{"anomalies": []}`, `{"anomalies": []}`},
		{"json fence", "```json\n{\"anomalies\": []}\n```", `{"anomalies": []}`},
		{"plain fence", "```\n{\"trends\": []}\n```", `{"trends": []}`},
		{"fence with preamble", "Here is the analysis:\n```json\n{\"anomalies\": []}\n```\nDone.", `{"anomalies": []}`},
		{"unterminated fence", "```json\n{\"anomalies\": []}", `{"anomalies": []}`},
		{"surrounding whitespace", "  \n{\"trends\": []}\n  ", `{"trends": []}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, extractJSON(tc.content))
		})
	}
}

func TestParseAnomalies(t *testing.T) {
	t.Run("valid response", func(t *testing.T) {
		content := "```json\n" + `{
			"anomalies": [
				{
					"type": "historical_low",
					"severity": "critical",
					"store_id": "0004",
					"title": "Store 0004 sales collapse",
					"description": "Sales 60% below the 7-day average",
					"metric_value": 800.00,
					"historical_average": 2000.00,
					"deviation_percent": -60.0
				}
			]
		}` + "\n```"

		anomalies := parseAnomalies(content)
		require.Len(t, anomalies, 1)
		assert.Equal(t, "historical_low", anomalies[0].Type)
		assert.Equal(t, "critical", anomalies[0].Severity)
		assert.Equal(t, "0004", anomalies[0].StoreID)
		assert.Equal(t, -60.0, anomalies[0].DeviationPercent)
	})

	t.Run("empty set", func(t *testing.T) {
		assert.Empty(t, parseAnomalies(`{"anomalies": []}`))
	})

	t.Run("malformed response yields nothing", func(t *testing.T) {
		assert.Nil(t, parseAnomalies("I could not produce JSON today."))
	})
}

func TestParseTrends(t *testing.T) {
	content := `{"trends": [{"type": "product_trend", "direction": "up", "change_percent": 12.5, "title": "Coffee rising", "description": "d", "significance": "high", "affected_items": ["SKU-1"]}]}`

	trends := parseTrends(content)
	require.Len(t, trends, 1)
	assert.Equal(t, "up", trends[0].Direction)
	assert.Equal(t, []string{"SKU-1"}, trends[0].AffectedItems)
}

func TestParseRecommendations(t *testing.T) {
	content := `{"recommendations": [{"priority": "high", "category": "inventory", "title": "Restock", "description": "d", "affected_stores": ["0001"], "expected_impact": "more sales"}]}`

	recs := parseRecommendations(content)
	require.Len(t, recs, 1)
	assert.Equal(t, "high", recs[0].Priority)
}

func TestSortByPriority(t *testing.T) {
	recs := []models.Recommendation{
		{Priority: "low", Title: "c"},
		{Priority: "high", Title: "a"},
		{Priority: "unknown", Title: "e"},
		{Priority: "medium", Title: "b"},
		{Priority: "high", Title: "d"},
	}

	sortByPriority(recs)

	priorities := make([]string, len(recs))
	for i, r := range recs {
		priorities[i] = r.Priority
	}
	assert.Equal(t, []string{"high", "high", "medium", "low", "unknown"}, priorities)
	// Stable within a priority.
	assert.Equal(t, "a", recs[0].Title)
	assert.Equal(t, "d", recs[1].Title)
}

func TestComputeHistoryStats(t *testing.T) {
	history := map[string][]models.StoreSummary{
		"0001": {
			{StoreID: "0001", TotalSales: 100.00, TransactionCount: 10},
			{StoreID: "0001", TotalSales: 200.00, TransactionCount: 20},
		},
		"0002": {},
	}

	stats := computeHistoryStats(history)

	require.Contains(t, stats, "0001")
	assert.Equal(t, 2, stats["0001"].Days)
	assert.Equal(t, 150.00, stats["0001"].AvgSales)
	assert.Equal(t, 15.0, stats["0001"].AvgTransactions)
	assert.Equal(t, []float64{100.00, 200.00}, stats["0001"].DailySales)

	assert.Equal(t, 0, stats["0002"].Days)
}

func TestBuildComparisons(t *testing.T) {
	summaries := []models.StoreSummary{
		{StoreID: "0001", TotalSales: 75.00, TransactionCount: 5, AvgTransaction: 15.00},
		{StoreID: "0002", TotalSales: 50.00, TransactionCount: 5, AvgTransaction: 10.00},
	}
	stats := map[string]historyStats{
		"0001": {StoreID: "0001", AvgSales: 100.00, AvgTransactions: 10, Days: 5},
	}

	comparisons := buildComparisons(summaries, stats)
	require.Len(t, comparisons, 2)

	withHistory := comparisons[0]
	require.NotNil(t, withHistory.SalesVsHistoryPct)
	assert.Equal(t, -25.0, *withHistory.SalesVsHistoryPct)
	require.NotNil(t, withHistory.TxnsVsHistoryPct)
	assert.Equal(t, -50.0, *withHistory.TxnsVsHistoryPct)
	assert.Equal(t, 5, withHistory.DaysOfHistoricalData)

	noHistory := comparisons[1]
	assert.Nil(t, noHistory.HistoricalAvgSales)
	assert.Nil(t, noHistory.SalesVsHistoryPct)
	assert.Equal(t, 0, noHistory.DaysOfHistoricalData)
}
