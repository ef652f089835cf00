package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS store_summaries (
		store_id TEXT NOT NULL,
		date TEXT NOT NULL,
		total_sales REAL NOT NULL,
		total_discount REAL NOT NULL,
		net_sales REAL NOT NULL,
		transaction_count INTEGER NOT NULL,
		item_count INTEGER NOT NULL,
		avg_transaction REAL NOT NULL,
		top_products TEXT NOT NULL,
		payment_breakdown TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		source_ref TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (store_id, date)
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_date ON store_summaries(date);

	CREATE TABLE IF NOT EXISTS upload_records (
		date TEXT NOT NULL,
		store_id TEXT NOT NULL,
		uploaded_at INTEGER NOT NULL,
		source_ref TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		total_sales REAL NOT NULL,
		PRIMARY KEY (date, store_id)
	);

	CREATE TABLE IF NOT EXISTS company_metrics (
		date TEXT PRIMARY KEY,
		total_sales REAL NOT NULL,
		total_transactions INTEGER NOT NULL,
		total_items INTEGER NOT NULL,
		store_count INTEGER NOT NULL,
		stores_reported TEXT NOT NULL,
		avg_transaction REAL NOT NULL,
		avg_store_sales REAL NOT NULL,
		best_store_id TEXT,
		best_store_sales REAL,
		worst_store_id TEXT,
		worst_store_sales REAL,
		payment_breakdown TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS product_metrics (
		date TEXT NOT NULL,
		sku TEXT NOT NULL,
		name TEXT NOT NULL,
		units_sold INTEGER NOT NULL,
		revenue REAL NOT NULL,
		stores TEXT NOT NULL,
		store_count INTEGER NOT NULL,
		PRIMARY KEY (date, sku)
	);
	CREATE INDEX IF NOT EXISTS idx_products_date ON product_metrics(date);

	CREATE TABLE IF NOT EXISTS insights (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		category TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_insights_date ON insights(date);
	CREATE INDEX IF NOT EXISTS idx_insights_category ON insights(category);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		date TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		detail TEXT NOT NULL DEFAULT '',
		failed_analyses TEXT NOT NULL DEFAULT '[]'
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// WriteIngestion persists the StoreSummary and its UploadRecord in one
// transaction so the pair is never partially visible.
func (c *Client) WriteIngestion(summary *models.StoreSummary, upload *models.UploadRecord) error {
	topProductsJSON, err := json.Marshal(summary.TopProducts)
	if err != nil {
		return fmt.Errorf("failed to marshal top products: %w", err)
	}
	paymentJSON, err := json.Marshal(summary.PaymentBreakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal payment breakdown: %w", err)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO store_summaries (store_id, date, total_sales, total_discount, net_sales,
			transaction_count, item_count, avg_transaction, top_products, payment_breakdown,
			record_count, source_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id, date) DO UPDATE SET
			total_sales = excluded.total_sales,
			total_discount = excluded.total_discount,
			net_sales = excluded.net_sales,
			transaction_count = excluded.transaction_count,
			item_count = excluded.item_count,
			avg_transaction = excluded.avg_transaction,
			top_products = excluded.top_products,
			payment_breakdown = excluded.payment_breakdown,
			record_count = excluded.record_count,
			source_ref = excluded.source_ref,
			updated_at = excluded.updated_at
	`,
		summary.StoreID,
		summary.Date,
		summary.TotalSales,
		summary.TotalDiscount,
		summary.NetSales,
		summary.TransactionCount,
		summary.ItemCount,
		summary.AvgTransaction,
		string(topProductsJSON),
		string(paymentJSON),
		summary.RecordCount,
		summary.SourceRef,
		summary.CreatedAt.Unix(),
		summary.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert store summary: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO upload_records (date, store_id, uploaded_at, source_ref, record_count, status, total_sales)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, store_id) DO UPDATE SET
			uploaded_at = excluded.uploaded_at,
			source_ref = excluded.source_ref,
			record_count = excluded.record_count,
			status = excluded.status,
			total_sales = excluded.total_sales
	`,
		upload.Date,
		upload.StoreID,
		upload.UploadedAt.Unix(),
		upload.SourceRef,
		upload.RecordCount,
		upload.Status,
		upload.TotalSales,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert upload record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingestion: %w", err)
	}

	logger.Debug("Ingestion written",
		zap.String("store_id", summary.StoreID),
		zap.String("date", summary.Date),
	)
	return nil
}

func (c *Client) ListUploadedStores(date string) ([]string, error) {
	rows, err := c.db.Query(`SELECT store_id FROM upload_records WHERE date = ? ORDER BY store_id`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploaded stores: %w", err)
	}
	defer rows.Close()

	var stores []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stores = append(stores, id)
	}

	return stores, rows.Err()
}

func (c *Client) GetStoreSummaries(date string) ([]models.StoreSummary, error) {
	rows, err := c.db.Query(`
		SELECT store_id, date, total_sales, total_discount, net_sales, transaction_count,
			item_count, avg_transaction, top_products, payment_breakdown, record_count,
			source_ref, created_at, updated_at
		FROM store_summaries
		WHERE date = ?
		ORDER BY store_id
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get store summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.StoreSummary
	for rows.Next() {
		s, err := scanStoreSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}

	return summaries, rows.Err()
}

func (c *Client) GetStoreSummary(storeID, date string) (*models.StoreSummary, error) {
	row := c.db.QueryRow(`
		SELECT store_id, date, total_sales, total_discount, net_sales, transaction_count,
			item_count, avg_transaction, top_products, payment_breakdown, record_count,
			source_ref, created_at, updated_at
		FROM store_summaries
		WHERE store_id = ? AND date = ?
	`, storeID, date)

	s, err := scanStoreSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStoreSummary(row rowScanner) (*models.StoreSummary, error) {
	var s models.StoreSummary
	var topProductsJSON, paymentJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&s.StoreID,
		&s.Date,
		&s.TotalSales,
		&s.TotalDiscount,
		&s.NetSales,
		&s.TransactionCount,
		&s.ItemCount,
		&s.AvgTransaction,
		&topProductsJSON,
		&paymentJSON,
		&s.RecordCount,
		&s.SourceRef,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan store summary: %w", err)
	}

	if err := json.Unmarshal([]byte(topProductsJSON), &s.TopProducts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal top products: %w", err)
	}
	if err := json.Unmarshal([]byte(paymentJSON), &s.PaymentBreakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment breakdown: %w", err)
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

func (c *Client) UpsertCompanyMetrics(m *models.CompanyMetrics) error {
	storesJSON, err := json.Marshal(m.StoresReported)
	if err != nil {
		return fmt.Errorf("failed to marshal stores reported: %w", err)
	}
	paymentJSON, err := json.Marshal(m.PaymentBreakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal payment breakdown: %w", err)
	}

	var bestID, worstID interface{}
	var bestSales, worstSales interface{}
	if m.BestStore != nil {
		bestID, bestSales = m.BestStore.StoreID, m.BestStore.TotalSales
	}
	if m.WorstStore != nil {
		worstID, worstSales = m.WorstStore.StoreID, m.WorstStore.TotalSales
	}

	_, err = c.db.Exec(`
		INSERT INTO company_metrics (date, total_sales, total_transactions, total_items,
			store_count, stores_reported, avg_transaction, avg_store_sales,
			best_store_id, best_store_sales, worst_store_id, worst_store_sales,
			payment_breakdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_sales = excluded.total_sales,
			total_transactions = excluded.total_transactions,
			total_items = excluded.total_items,
			store_count = excluded.store_count,
			stores_reported = excluded.stores_reported,
			avg_transaction = excluded.avg_transaction,
			avg_store_sales = excluded.avg_store_sales,
			best_store_id = excluded.best_store_id,
			best_store_sales = excluded.best_store_sales,
			worst_store_id = excluded.worst_store_id,
			worst_store_sales = excluded.worst_store_sales,
			payment_breakdown = excluded.payment_breakdown,
			created_at = excluded.created_at
	`,
		m.Date,
		m.TotalSales,
		m.TotalTransactions,
		m.TotalItems,
		m.StoreCount,
		string(storesJSON),
		m.AvgTransaction,
		m.AvgStoreSales,
		bestID,
		bestSales,
		worstID,
		worstSales,
		string(paymentJSON),
		m.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company metrics: %w", err)
	}

	return nil
}

func (c *Client) GetCompanyMetrics(date string) (*models.CompanyMetrics, error) {
	row := c.db.QueryRow(`
		SELECT date, total_sales, total_transactions, total_items, store_count,
			stores_reported, avg_transaction, avg_store_sales,
			best_store_id, best_store_sales, worst_store_id, worst_store_sales,
			payment_breakdown, created_at
		FROM company_metrics
		WHERE date = ?
	`, date)

	var m models.CompanyMetrics
	var storesJSON, paymentJSON string
	var bestID, worstID sql.NullString
	var bestSales, worstSales sql.NullFloat64
	var createdAt int64

	err := row.Scan(
		&m.Date,
		&m.TotalSales,
		&m.TotalTransactions,
		&m.TotalItems,
		&m.StoreCount,
		&storesJSON,
		&m.AvgTransaction,
		&m.AvgStoreSales,
		&bestID,
		&bestSales,
		&worstID,
		&worstSales,
		&paymentJSON,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company metrics: %w", err)
	}

	if err := json.Unmarshal([]byte(storesJSON), &m.StoresReported); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stores reported: %w", err)
	}
	if err := json.Unmarshal([]byte(paymentJSON), &m.PaymentBreakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment breakdown: %w", err)
	}
	if bestID.Valid {
		m.BestStore = &models.StoreSales{StoreID: bestID.String, TotalSales: bestSales.Float64}
	}
	if worstID.Valid {
		m.WorstStore = &models.StoreSales{StoreID: worstID.String, TotalSales: worstSales.Float64}
	}
	m.CreatedAt = time.Unix(createdAt, 0)

	return &m, nil
}

// ReplaceProductMetrics replaces the date's whole product ranking.
func (c *Client) ReplaceProductMetrics(date string, products []models.ProductMetrics) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM product_metrics WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to clear product metrics: %w", err)
	}

	for _, p := range products {
		storesJSON, err := json.Marshal(p.Stores)
		if err != nil {
			return fmt.Errorf("failed to marshal stores: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO product_metrics (date, sku, name, units_sold, revenue, stores, store_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, date, p.SKU, p.Name, p.UnitsSold, p.Revenue, string(storesJSON), p.StoreCount)
		if err != nil {
			return fmt.Errorf("failed to insert product metrics: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product metrics: %w", err)
	}

	return nil
}

func (c *Client) GetProductMetrics(date string) ([]models.ProductMetrics, error) {
	rows, err := c.db.Query(`
		SELECT date, sku, name, units_sold, revenue, stores, store_count
		FROM product_metrics
		WHERE date = ?
		ORDER BY revenue DESC, sku ASC
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get product metrics: %w", err)
	}
	defer rows.Close()

	var products []models.ProductMetrics
	for rows.Next() {
		var p models.ProductMetrics
		var storesJSON string
		err := rows.Scan(&p.Date, &p.SKU, &p.Name, &p.UnitsSold, &p.Revenue, &storesJSON, &p.StoreCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product metrics: %w", err)
		}
		if err := json.Unmarshal([]byte(storesJSON), &p.Stores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stores: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// ReplaceInsights swaps the date's insight set atomically so retried runs do
// not accumulate prior results.
func (c *Client) ReplaceInsights(date string, insights []models.Insight) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM insights WHERE date = ?`, date); err != nil {
		return fmt.Errorf("failed to clear insights: %w", err)
	}

	for _, ins := range insights {
		payload, err := json.Marshal(ins)
		if err != nil {
			return fmt.Errorf("failed to marshal insight: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO insights (id, date, category, payload, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, ins.ID, ins.Date, ins.Category, string(payload), ins.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert insight: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insights: %w", err)
	}

	logger.Debug("Insights replaced", zap.String("date", date), zap.Int("count", len(insights)))
	return nil
}

func (c *Client) GetInsights(date string) ([]models.Insight, error) {
	rows, err := c.db.Query(`SELECT payload FROM insights WHERE date = ? ORDER BY category, id`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get insights: %w", err)
	}
	defer rows.Close()

	var insights []models.Insight
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		var ins models.Insight
		if err := json.Unmarshal([]byte(payload), &ins); err != nil {
			return nil, fmt.Errorf("failed to unmarshal insight: %w", err)
		}
		insights = append(insights, ins)
	}

	return insights, rows.Err()
}

// ClaimRun atomically claims the date's analysis run. It returns false when a
// run has already succeeded or another worker currently holds the claim. A
// failed run, or a running claim older than takeover, is reclaimable.
func (c *Client) ClaimRun(date string, takeover time.Duration) (bool, error) {
	cutoff := time.Now().Add(-takeover).Unix()

	res, err := c.db.Exec(`
		INSERT INTO analysis_runs (date, status, started_at, finished_at, detail, failed_analyses)
		VALUES (?, 'running', ?, NULL, '', '[]')
		ON CONFLICT(date) DO UPDATE SET
			status = 'running',
			started_at = excluded.started_at,
			finished_at = NULL,
			detail = '',
			failed_analyses = '[]'
		WHERE analysis_runs.status = 'failed'
			OR (analysis_runs.status = 'running' AND analysis_runs.started_at < ?)
	`, date, time.Now().Unix(), cutoff)
	if err != nil {
		return false, fmt.Errorf("failed to claim run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return n > 0, nil
}

func (c *Client) FinishRun(date, status, detail string, failedAnalyses []string) error {
	if failedAnalyses == nil {
		failedAnalyses = []string{}
	}
	failedJSON, err := json.Marshal(failedAnalyses)
	if err != nil {
		return fmt.Errorf("failed to marshal failed analyses: %w", err)
	}

	_, err = c.db.Exec(`
		UPDATE analysis_runs
		SET status = ?, finished_at = ?, detail = ?, failed_analyses = ?
		WHERE date = ?
	`, status, time.Now().Unix(), detail, string(failedJSON), date)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

func (c *Client) GetRun(date string) (*models.AnalysisRun, error) {
	row := c.db.QueryRow(`
		SELECT date, status, started_at, finished_at, detail, failed_analyses
		FROM analysis_runs
		WHERE date = ?
	`, date)

	var r models.AnalysisRun
	var startedAt int64
	var finishedAt sql.NullInt64
	var failedJSON string

	err := row.Scan(&r.Date, &r.Status, &startedAt, &finishedAt, &r.Detail, &failedJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	r.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		r.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(failedJSON), &r.FailedAnalyses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed analyses: %w", err)
	}

	return &r, nil
}

func (c *Client) ListAvailableDates(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 90
	}

	rows, err := c.db.Query(`
		SELECT DISTINCT date FROM store_summaries ORDER BY date DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, d)
	}

	return dates, rows.Err()
}
