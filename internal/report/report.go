// Package report renders the daily analysis into a plain-text summary and
// delivers it. Delivery failures never fail the analysis run.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/metrics"
	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/pkg/config"
	"github.com/salesdata/backend/pkg/logger"
)

const topProductsInReport = 5

// Format renders the run's results as a subject line and a plain-text body.
func Format(date string, company *models.CompanyMetrics, products []models.ProductMetrics, insights *models.CombinedInsights) (string, string) {
	subject := fmt.Sprintf("Daily Sales Report - %s", date)

	var b strings.Builder
	fmt.Fprintf(&b, "DAILY SALES REPORT\n%s\n%s\n\n", date, strings.Repeat("=", 50))

	writeCompanySummary(&b, company)
	writePaymentBreakdown(&b, company)
	writeTopProducts(&b, products)
	writeInsights(&b, insights)

	b.WriteString(strings.Repeat("=", 50) + "\n")
	fmt.Fprintf(&b, "Generated at %s\n", time.Now().UTC().Format(time.RFC3339))

	return subject, b.String()
}

func writeCompanySummary(b *strings.Builder, company *models.CompanyMetrics) {
	b.WriteString("COMPANY SUMMARY\n" + strings.Repeat("-", 50) + "\n")

	if company == nil {
		b.WriteString("No company metrics available.\n\n")
		return
	}

	fmt.Fprintf(b, "Total Sales:        $%.2f\n", company.TotalSales)
	fmt.Fprintf(b, "Transactions:       %d\n", company.TotalTransactions)
	fmt.Fprintf(b, "Items Sold:         %d\n", company.TotalItems)
	fmt.Fprintf(b, "Stores Reporting:   %d\n", company.StoreCount)
	fmt.Fprintf(b, "Avg Transaction:    $%.2f\n", company.AvgTransaction)
	fmt.Fprintf(b, "Avg Store Sales:    $%.2f\n", company.AvgStoreSales)
	if company.BestStore != nil {
		fmt.Fprintf(b, "Best Store:         #%s ($%.2f)\n", company.BestStore.StoreID, company.BestStore.TotalSales)
	}
	if company.WorstStore != nil {
		fmt.Fprintf(b, "Worst Store:        #%s ($%.2f)\n", company.WorstStore.StoreID, company.WorstStore.TotalSales)
	}
	b.WriteString("\n")
}

func writePaymentBreakdown(b *strings.Builder, company *models.CompanyMetrics) {
	if company == nil || len(company.PaymentBreakdown) == 0 {
		return
	}

	b.WriteString("PAYMENT BREAKDOWN\n" + strings.Repeat("-", 50) + "\n")
	for _, method := range models.PaymentMethods {
		fmt.Fprintf(b, "%-12s $%.2f\n", method+":", company.PaymentBreakdown[method])
	}
	b.WriteString("\n")
}

func writeTopProducts(b *strings.Builder, products []models.ProductMetrics) {
	b.WriteString("TOP PRODUCTS\n" + strings.Repeat("-", 50) + "\n")

	if len(products) == 0 {
		b.WriteString("No product data available.\n\n")
		return
	}

	limit := topProductsInReport
	if len(products) < limit {
		limit = len(products)
	}
	for i := 0; i < limit; i++ {
		p := products[i]
		fmt.Fprintf(b, "%d. %s (%s): %d units, $%.2f across %d stores\n",
			i+1, p.Name, p.SKU, p.UnitsSold, p.Revenue, p.StoreCount)
	}
	b.WriteString("\n")
}

func writeInsights(b *strings.Builder, insights *models.CombinedInsights) {
	b.WriteString("AI INSIGHTS\n" + strings.Repeat("-", 50) + "\n")

	if insights == nil {
		b.WriteString("No insights available.\n\n")
		return
	}

	if len(insights.Anomalies) > 0 {
		b.WriteString("Anomalies:\n")
		for _, a := range insights.Anomalies {
			fmt.Fprintf(b, "  %s %s", severityIcon(a.Severity), a.Title)
			if a.StoreID != "" {
				fmt.Fprintf(b, " (store #%s)", a.StoreID)
			}
			b.WriteString("\n")
			fmt.Fprintf(b, "      %s\n", a.Description)
		}
		b.WriteString("\n")
	}

	if len(insights.Trends) > 0 {
		b.WriteString("Trends:\n")
		for _, t := range insights.Trends {
			fmt.Fprintf(b, "  %s %s (%+.1f%%)\n", directionArrow(t.Direction), t.Title, t.ChangePercent)
			fmt.Fprintf(b, "      %s\n", t.Description)
		}
		b.WriteString("\n")
	}

	if len(insights.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for _, r := range insights.Recommendations {
			fmt.Fprintf(b, "  %s %s\n", priorityTag(r.Priority), r.Title)
			fmt.Fprintf(b, "      %s\n", r.Description)
			if r.ExpectedImpact != "" {
				fmt.Fprintf(b, "      Expected impact: %s\n", r.ExpectedImpact)
			}
		}
		b.WriteString("\n")
	}

	if len(insights.Anomalies) == 0 && len(insights.Trends) == 0 && len(insights.Recommendations) == 0 {
		b.WriteString("No insights generated for this date.\n\n")
	}

	if len(insights.FailedAnalyses) > 0 {
		fmt.Fprintf(b, "NOTE: the following analyses failed and are not reflected above: %s\n\n",
			strings.Join(insights.FailedAnalyses, ", "))
	}
}

func severityIcon(severity string) string {
	switch severity {
	case "critical":
		return "[!!!]"
	case "warning":
		return "[!]"
	default:
		return "[i]"
	}
}

func directionArrow(direction string) string {
	switch direction {
	case "up":
		return "[UP]"
	case "down":
		return "[DOWN]"
	default:
		return "[FLAT]"
	}
}

func priorityTag(priority string) string {
	switch priority {
	case "high":
		return "[HIGH]"
	case "medium":
		return "[MED]"
	default:
		return "[LOW]"
	}
}

// Dispatcher delivers a rendered report.
type Dispatcher interface {
	Dispatch(ctx context.Context, subject, body string) error
}

type WebhookDispatcher struct {
	url    string
	client *http.Client
}

func NewWebhookDispatcher(url string, timeoutSec int) *WebhookDispatcher {
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &WebhookDispatcher{
		url: url,
		client: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal report payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		metrics.ReportDispatches.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to dispatch report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.ReportDispatches.WithLabelValues("failure").Inc()
		return fmt.Errorf("report webhook returned status %d", resp.StatusCode)
	}

	metrics.ReportDispatches.WithLabelValues("success").Inc()
	return nil
}

// LogDispatcher writes the report to the application log. It is the default
// when no webhook is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(_ context.Context, subject, body string) error {
	logger.Info("Daily report generated",
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	metrics.ReportDispatches.WithLabelValues("success").Inc()
	return nil
}

func NewDispatcher(cfg config.ReportConfig) Dispatcher {
	if cfg.WebhookURL != "" {
		return NewWebhookDispatcher(cfg.WebhookURL, cfg.TimeoutSec)
	}
	return LogDispatcher{}
}
