package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/pkg/config"
)

func sampleCompany() *models.CompanyMetrics {
	return &models.CompanyMetrics{
		Date:              "2026-03-15",
		TotalSales:        4321.00,
		TotalTransactions: 200,
		TotalItems:        350,
		StoreCount:        11,
		AvgTransaction:    21.61,
		AvgStoreSales:     392.82,
		BestStore:         &models.StoreSales{StoreID: "0002", TotalSales: 900.00},
		WorstStore:        &models.StoreSales{StoreID: "0007", TotalSales: 120.00},
		PaymentBreakdown:  map[string]float64{"cash": 1000, "credit": 2000, "debit": 1000, "gift_card": 321},
	}
}

func TestFormat(t *testing.T) {
	t.Run("full report", func(t *testing.T) {
		products := []models.ProductMetrics{
			{SKU: "SKU-1", Name: "Coffee", UnitsSold: 40, Revenue: 400.00, StoreCount: 8},
		}
		insights := &models.CombinedInsights{
			Anomalies: []models.Anomaly{
				{Severity: "critical", StoreID: "0007", Title: "Sales collapse", Description: "60% below average"},
				{Severity: "warning", StoreID: "0003", Title: "Soft day", Description: "30% below average"},
				{Severity: "info", Title: "Minor variance", Description: "detail"},
			},
			Trends: []models.Trend{
				{Direction: "up", ChangePercent: 12.5, Title: "Coffee rising", Description: "detail"},
			},
			Recommendations: []models.Recommendation{
				{Priority: "high", Title: "Check store 0007", Description: "detail", ExpectedImpact: "recover sales"},
				{Priority: "low", Title: "Watch coffee stock", Description: "detail"},
			},
		}

		subject, body := Format("2026-03-15", sampleCompany(), products, insights)

		assert.Equal(t, "Daily Sales Report - 2026-03-15", subject)
		assert.Contains(t, body, "COMPANY SUMMARY")
		assert.Contains(t, body, "Total Sales:        $4321.00")
		assert.Contains(t, body, "Best Store:         #0002 ($900.00)")
		assert.Contains(t, body, "PAYMENT BREAKDOWN")
		assert.Contains(t, body, "TOP PRODUCTS")
		assert.Contains(t, body, "1. Coffee (SKU-1): 40 units, $400.00 across 8 stores")
		assert.Contains(t, body, "[!!!] Sales collapse (store #0007)")
		assert.Contains(t, body, "[!] Soft day")
		assert.Contains(t, body, "[i] Minor variance")
		assert.Contains(t, body, "[UP] Coffee rising (+12.5%)")
		assert.Contains(t, body, "[HIGH] Check store 0007")
		assert.Contains(t, body, "[LOW] Watch coffee stock")
		assert.Contains(t, body, "Expected impact: recover sales")
		assert.NotContains(t, body, "NOTE: the following analyses failed")
	})

	t.Run("top products capped at five", func(t *testing.T) {
		var products []models.ProductMetrics
		for i := 0; i < 8; i++ {
			products = append(products, models.ProductMetrics{
				SKU: "SKU", Name: "Item", UnitsSold: 1, Revenue: 1.00, StoreCount: 1,
			})
		}

		_, body := Format("2026-03-15", sampleCompany(), products, &models.CombinedInsights{})
		assert.Contains(t, body, "5. Item")
		assert.NotContains(t, body, "6. Item")
	})

	t.Run("failed analyses noted", func(t *testing.T) {
		insights := &models.CombinedInsights{FailedAnalyses: []string{"trends"}}
		_, body := Format("2026-03-15", sampleCompany(), nil, insights)
		assert.Contains(t, body, "NOTE: the following analyses failed")
		assert.Contains(t, body, "trends")
	})

	t.Run("degrades with no data", func(t *testing.T) {
		_, body := Format("2026-03-15", nil, nil, nil)
		assert.Contains(t, body, "No company metrics available.")
		assert.Contains(t, body, "No product data available.")
		assert.Contains(t, body, "No insights available.")
	})
}

func TestWebhookDispatcher(t *testing.T) {
	t.Run("posts subject and body", func(t *testing.T) {
		var received map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		d := NewWebhookDispatcher(server.URL, 5)
		err := d.Dispatch(context.Background(), "subject", "body")
		require.NoError(t, err)
		assert.Equal(t, "subject", received["subject"])
		assert.Equal(t, "body", received["body"])
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		d := NewWebhookDispatcher(server.URL, 5)
		err := d.Dispatch(context.Background(), "subject", "body")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})
}

func TestNewDispatcher(t *testing.T) {
	assert.IsType(t, LogDispatcher{}, NewDispatcher(config.ReportConfig{}))
	assert.IsType(t, &WebhookDispatcher{}, NewDispatcher(config.ReportConfig{WebhookURL: "http://example.com/hook"}))
}
