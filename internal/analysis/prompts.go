package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/salesdata/backend/internal/storage/models"
)

type historyStats struct {
	StoreID         string    `json:"store_id"`
	AvgSales        float64   `json:"avg_sales"`
	AvgTransactions float64   `json:"avg_transactions"`
	Days            int       `json:"days_of_data"`
	DailySales      []float64 `json:"daily_sales"`
}

func computeHistoryStats(history map[string][]models.StoreSummary) map[string]historyStats {
	stats := make(map[string]historyStats, len(history))

	for storeID, records := range history {
		s := historyStats{StoreID: storeID}
		if len(records) > 0 {
			var totalSales float64
			var totalTransactions int
			for _, r := range records {
				totalSales += r.TotalSales
				totalTransactions += r.TransactionCount
				s.DailySales = append(s.DailySales, r.TotalSales)
			}
			s.Days = len(records)
			s.AvgSales = round2(totalSales / float64(len(records)))
			s.AvgTransactions = round1(float64(totalTransactions) / float64(len(records)))
		}
		stats[storeID] = s
	}

	return stats
}

type storeComparison struct {
	StoreID              string   `json:"store_id"`
	TodaySales           float64  `json:"today_sales"`
	TodayTransactions    int      `json:"today_transactions"`
	AvgTransaction       float64  `json:"avg_transaction"`
	HistoricalAvgSales   *float64 `json:"historical_avg_sales"`
	HistoricalAvgTxns    *float64 `json:"historical_avg_transactions"`
	SalesVsHistoryPct    *float64 `json:"sales_vs_history_percent"`
	TxnsVsHistoryPct     *float64 `json:"transactions_vs_history_percent"`
	DaysOfHistoricalData int      `json:"days_of_historical_data"`
}

func buildComparisons(summaries []models.StoreSummary, stats map[string]historyStats) []storeComparison {
	comparisons := make([]storeComparison, 0, len(summaries))

	for _, store := range summaries {
		cmp := storeComparison{
			StoreID:           store.StoreID,
			TodaySales:        store.TotalSales,
			TodayTransactions: store.TransactionCount,
			AvgTransaction:    store.AvgTransaction,
		}

		if hist, ok := stats[store.StoreID]; ok && hist.Days > 0 {
			avgSales := hist.AvgSales
			avgTxns := hist.AvgTransactions
			cmp.HistoricalAvgSales = &avgSales
			cmp.HistoricalAvgTxns = &avgTxns
			cmp.DaysOfHistoricalData = hist.Days

			if avgSales > 0 {
				dev := round1((store.TotalSales - avgSales) / avgSales * 100)
				cmp.SalesVsHistoryPct = &dev
			}
			if avgTxns > 0 {
				dev := round1((float64(store.TransactionCount) - avgTxns) / avgTxns * 100)
				cmp.TxnsVsHistoryPct = &dev
			}
		}

		comparisons = append(comparisons, cmp)
	}

	return comparisons
}

func buildAnomalyPrompt(date string, summaries []models.StoreSummary, company *models.CompanyMetrics, stats map[string]historyStats) string {
	comparisons := buildComparisons(summaries, stats)
	storeData, _ := json.MarshalIndent(comparisons, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following store sales data for %s and identify anomalies by comparing today's performance against the last %d days.\n\n", date, historicalDays)
	fmt.Fprintf(&b, "TODAY'S STORE DATA WITH HISTORICAL COMPARISON:\n%s\n\n", storeData)
	writeCompanyTotals(&b, company)
	b.WriteString(`Identify anomalies in the following categories:
1. HISTORICAL DEVIATION: Stores performing significantly different from their own historical average (>25% deviation)
2. SUDDEN CHANGES: Dramatic increases or decreases compared to recent history
3. PEER COMPARISON: Stores significantly under/over-performing compared to other stores today
4. CONSISTENCY ISSUES: Stores with erratic patterns (if historical data shows high variance)

IMPORTANT: Focus on deviations FROM HISTORICAL AVERAGES, not just peer comparison.

Return your analysis as a JSON object with this exact structure:
{
  "anomalies": [
    {
      "type": "historical_low|historical_high|sudden_drop|sudden_spike|peer_outlier",
      "severity": "info|warning|critical",
      "store_id": "0001",
      "title": "Brief description",
      "description": "Detailed explanation including historical context",
      "metric_value": 1234.56,
      "historical_average": 2000.00,
      "deviation_percent": -38.3
    }
  ]
}

Severity guide:
- critical: >50% deviation from historical average OR sudden complete drop
- warning: 25-50% deviation from historical average
- info: Notable but not concerning patterns

Only include actual anomalies. If no anomalies found, return an empty anomalies array.
Return ONLY the JSON object, no other text.`)

	return b.String()
}

func buildTrendPrompt(date string, summaries []models.StoreSummary, company *models.CompanyMetrics, stats map[string]historyStats) string {
	comparisons := buildComparisons(summaries, stats)
	storeData, _ := json.MarshalIndent(comparisons, "", "  ")

	topProducts := make([]models.ProductSales, 0)
	for _, s := range summaries {
		topProducts = append(topProducts, s.TopProducts...)
	}
	productData, _ := json.MarshalIndent(topProducts, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following sales data for %s and identify meaningful trends across stores and products, using the last %d days of history where available.\n\n", date, historicalDays)
	fmt.Fprintf(&b, "STORE DATA WITH HISTORICAL CONTEXT:\n%s\n\n", storeData)
	fmt.Fprintf(&b, "PER-STORE TOP PRODUCTS TODAY:\n%s\n\n", productData)
	writeCompanyTotals(&b, company)
	b.WriteString(`Identify trends in the following categories:
1. SALES MOMENTUM: Company or store-level sales moving consistently up or down
2. PRODUCT TRENDS: Products gaining or losing traction across stores
3. PAYMENT SHIFTS: Changes in how customers pay
4. STORE PATTERNS: Groups of stores moving together

Return your analysis as a JSON object with this exact structure:
{
  "trends": [
    {
      "type": "sales_momentum|product_trend|payment_shift|store_pattern",
      "direction": "up|down|flat",
      "change_percent": 12.5,
      "title": "Brief trend title",
      "description": "Detailed explanation with supporting numbers",
      "significance": "low|medium|high",
      "affected_items": ["0001", "SKU-042"]
    }
  ]
}

Only include trends supported by the data. If no clear trends exist, return an empty trends array.
Return ONLY the JSON object, no other text.`)

	return b.String()
}

func buildRecommendationPrompt(date string, anomalies []models.Anomaly, trends []models.Trend, company *models.CompanyMetrics) string {
	anomalyData := "No anomalies detected"
	if len(anomalies) > 0 {
		data, _ := json.MarshalIndent(anomalies, "", "  ")
		anomalyData = string(data)
	}

	trendData := "No specific trends identified"
	if len(trends) > 0 {
		data, _ := json.MarshalIndent(trends, "", "  ")
		trendData = string(data)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following sales analysis for %s, generate actionable business recommendations.\n\n", date)
	writeCompanyTotals(&b, company)
	fmt.Fprintf(&b, "DETECTED ANOMALIES:\n%s\n\n", anomalyData)
	fmt.Fprintf(&b, "IDENTIFIED TRENDS:\n%s\n\n", trendData)
	b.WriteString(`Based on this analysis, generate specific, actionable recommendations for:
1. INVENTORY: Stock level adjustments based on product performance
2. MARKETING: Promotional opportunities based on trends
3. OPERATIONS: Store-specific actions for underperforming locations
4. STRATEGY: Longer-term strategic considerations

Return your recommendations as a JSON object with this exact structure:
{
  "recommendations": [
    {
      "priority": "high|medium|low",
      "category": "inventory|marketing|operations|strategy",
      "title": "Brief recommendation title",
      "description": "Detailed explanation with specific actions",
      "affected_stores": ["0001", "0002"],
      "affected_products": ["SKU-001", "SKU-002"],
      "expected_impact": "Brief description of expected outcome"
    }
  ]
}

Prioritize high-impact, immediately actionable recommendations. Return ONLY the JSON object, no other text.`)

	return b.String()
}

func writeCompanyTotals(b *strings.Builder, company *models.CompanyMetrics) {
	if company == nil {
		return
	}

	b.WriteString("TODAY'S COMPANY TOTALS:\n")
	fmt.Fprintf(b, "- Total Sales: $%.2f\n", company.TotalSales)
	fmt.Fprintf(b, "- Total Transactions: %d\n", company.TotalTransactions)
	fmt.Fprintf(b, "- Stores Reporting: %d\n", company.StoreCount)
	fmt.Fprintf(b, "- Average Transaction: $%.2f\n", company.AvgTransaction)
	if company.BestStore != nil {
		fmt.Fprintf(b, "- Best Store: #%s ($%.2f)\n", company.BestStore.StoreID, company.BestStore.TotalSales)
	}
	if company.WorstStore != nil {
		fmt.Fprintf(b, "- Worst Store: #%s ($%.2f)\n", company.WorstStore.StoreID, company.WorstStore.TotalSales)
	}
	b.WriteString("\n")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
