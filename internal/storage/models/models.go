package models

import "time"

// Payment methods are a fixed vocabulary; summaries always carry all four.
var PaymentMethods = []string{"cash", "credit", "debit", "gift_card"}

type TransactionRecord struct {
	TransactionID        string  `json:"transaction_id"`
	TransactionTimestamp string  `json:"transaction_timestamp"`
	ItemSKU              string  `json:"item_sku"`
	ItemName             string  `json:"item_name"`
	Quantity             int     `json:"quantity"`
	UnitPrice            float64 `json:"unit_price"`
	LineTotal            float64 `json:"line_total"`
	DiscountAmount       float64 `json:"discount_amount"`
	PaymentMethod        string  `json:"payment_method"`
	CustomerID           string  `json:"customer_id"`
}

type ProductSales struct {
	SKU     string  `json:"sku"`
	Name    string  `json:"name"`
	Units   int     `json:"units"`
	Revenue float64 `json:"revenue"`
}

// StoreSummary is one store's computed sales metrics for one date.
// At most one exists per (store, date); re-upload overwrites.
type StoreSummary struct {
	StoreID          string             `json:"store_id"`
	Date             string             `json:"date"`
	TotalSales       float64            `json:"total_sales"`
	TotalDiscount    float64            `json:"total_discount"`
	NetSales         float64            `json:"net_sales"`
	TransactionCount int                `json:"transaction_count"`
	ItemCount        int                `json:"item_count"`
	AvgTransaction   float64            `json:"avg_transaction"`
	TopProducts      []ProductSales     `json:"top_products"`
	PaymentBreakdown map[string]float64 `json:"payment_breakdown"`
	RecordCount      int                `json:"record_count"`
	SourceRef        string             `json:"source_ref"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

type UploadRecord struct {
	Date        string    `json:"date"`
	StoreID     string    `json:"store_id"`
	UploadedAt  time.Time `json:"uploaded_at"`
	SourceRef   string    `json:"source_ref"`
	RecordCount int       `json:"record_count"`
	Status      string    `json:"status"`
	TotalSales  float64   `json:"total_sales"`
}

type StoreSales struct {
	StoreID    string  `json:"store_id"`
	TotalSales float64 `json:"total_sales"`
}

// CompanyMetrics is derived wholesale from the date's store summaries and
// replaced, never merged, on each analysis run.
type CompanyMetrics struct {
	Date              string             `json:"date"`
	TotalSales        float64            `json:"total_sales"`
	TotalTransactions int                `json:"total_transactions"`
	TotalItems        int                `json:"total_items"`
	StoreCount        int                `json:"store_count"`
	StoresReported    []string           `json:"stores_reported"`
	AvgTransaction    float64            `json:"avg_transaction"`
	AvgStoreSales     float64            `json:"avg_store_sales"`
	BestStore         *StoreSales        `json:"best_store,omitempty"`
	WorstStore        *StoreSales        `json:"worst_store,omitempty"`
	PaymentBreakdown  map[string]float64 `json:"payment_breakdown"`
	CreatedAt         time.Time          `json:"created_at"`
}

type ProductMetrics struct {
	Date       string   `json:"date"`
	SKU        string   `json:"sku"`
	Name       string   `json:"name"`
	UnitsSold  int      `json:"units_sold"`
	Revenue    float64  `json:"revenue"`
	Stores     []string `json:"stores_sold_at"`
	StoreCount int      `json:"store_count"`
}

const (
	InsightAnomaly        = "anomaly"
	InsightTrend          = "trend"
	InsightRecommendation = "recommendation"
)

type Anomaly struct {
	Type              string  `json:"type"`
	Severity          string  `json:"severity"`
	StoreID           string  `json:"store_id"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	MetricValue       float64 `json:"metric_value"`
	HistoricalAverage float64 `json:"historical_average"`
	DeviationPercent  float64 `json:"deviation_percent"`
}

type Trend struct {
	Type          string   `json:"type"`
	Direction     string   `json:"direction"`
	ChangePercent float64  `json:"change_percent"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Significance  string   `json:"significance"`
	AffectedItems []string `json:"affected_items"`
}

type Recommendation struct {
	Priority         string   `json:"priority"`
	Category         string   `json:"category"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	AffectedStores   []string `json:"affected_stores"`
	AffectedProducts []string `json:"affected_products"`
	ExpectedImpact   string   `json:"expected_impact"`
}

// Insight is the persisted envelope: exactly one of Anomaly, Trend,
// Recommendation is set, matching Category.
type Insight struct {
	ID             string          `json:"id"`
	Date           string          `json:"date"`
	Category       string          `json:"category"`
	CreatedAt      time.Time       `json:"created_at"`
	Anomaly        *Anomaly        `json:"anomaly,omitempty"`
	Trend          *Trend          `json:"trend,omitempty"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// CombinedInsights is the fan-in result of one analysis run: the union of
// whatever analyses succeeded, plus the names of those that failed.
type CombinedInsights struct {
	Anomalies       []Anomaly        `json:"anomalies"`
	Trends          []Trend          `json:"trends"`
	Recommendations []Recommendation `json:"recommendations"`
	FailedAnalyses  []string         `json:"failed_analyses,omitempty"`
}

const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// AnalysisRun is the orchestrator-owned run state for one date. It is the
// source of truth for "has today's analysis already succeeded".
type AnalysisRun struct {
	Date           string     `json:"date"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Detail         string     `json:"detail,omitempty"`
	FailedAnalyses []string   `json:"failed_analyses,omitempty"`
}
