package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/metrics"
	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/internal/storage/sqlite"
	"github.com/salesdata/backend/pkg/logger"
)

// Source reference pattern: store_XXXX_YYYY-MM-DD, optionally suffixed .json.
var sourceRefPattern = regexp.MustCompile(`^store_(\d{4})_(\d{4}-\d{2}-\d{2})(\.json)?$`)

const (
	StatusProcessed = "processed"
	StatusRejected  = "rejected"
)

type Result struct {
	Status      string `json:"status"`
	StoreID     string `json:"store_id,omitempty"`
	Date        string `json:"date,omitempty"`
	RecordCount int    `json:"record_count,omitempty"`
	Detail      string `json:"detail,omitempty"`
	RejectedRef string `json:"rejected_ref,omitempty"`
}

type Processor struct {
	db          *sqlite.Client
	rejectedDir string
}

func NewProcessor(db *sqlite.Client, rejectedDir string) *Processor {
	return &Processor{
		db:          db,
		rejectedDir: rejectedDir,
	}
}

// ParseSourceRef extracts (storeID, date) from an upload's source reference.
func ParseSourceRef(sourceRef string) (string, string, error) {
	match := sourceRefPattern.FindStringSubmatch(sourceRef)
	if match == nil {
		return "", "", validationErrorf("invalid source reference, expected store_XXXX_YYYY-MM-DD.json, got %q", sourceRef)
	}

	storeID, date := match[1], match[2]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", "", validationErrorf("invalid date in source reference %q", sourceRef)
	}

	return storeID, date, nil
}

// Ingest runs the per-file pipeline: parse the source reference, decode and
// validate, aggregate, persist the summary and upload record together.
// Re-ingesting the same (store, date) overwrites; the operation is idempotent.
func (p *Processor) Ingest(sourceRef string, raw []byte) (*Result, error) {
	logger.Info("Processing upload", zap.String("source_ref", sourceRef))

	storeID, date, err := ParseSourceRef(sourceRef)
	if err != nil {
		return p.reject(sourceRef, raw, err)
	}

	transactions, err := Decode(raw)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return p.reject(sourceRef, raw, err)
		}
		return nil, fmt.Errorf("failed to decode upload: %w", err)
	}

	now := time.Now().UTC()
	summary := ComputeStoreSummary(storeID, date, transactions, sourceRef, now)
	upload := &models.UploadRecord{
		Date:        date,
		StoreID:     storeID,
		UploadedAt:  now,
		SourceRef:   sourceRef,
		RecordCount: len(transactions),
		Status:      StatusProcessed,
		TotalSales:  summary.TotalSales,
	}

	if err := p.db.WriteIngestion(summary, upload); err != nil {
		return nil, fmt.Errorf("failed to persist ingestion: %w", err)
	}

	metrics.FilesProcessed.Inc()
	metrics.RecordsProcessed.Add(float64(len(transactions)))

	logger.Info("Upload processed",
		zap.String("store_id", storeID),
		zap.String("date", date),
		zap.Int("records", len(transactions)),
		zap.Float64("total_sales", summary.TotalSales),
	)

	return &Result{
		Status:      StatusProcessed,
		StoreID:     storeID,
		Date:        date,
		RecordCount: len(transactions),
	}, nil
}

// reject routes the original input to the rejected store with the validation
// detail attached. Rejection is a handled outcome, not a pipeline failure.
func (p *Processor) reject(sourceRef string, raw []byte, cause error) (*Result, error) {
	metrics.FilesRejected.Inc()

	logger.Warn("Upload rejected",
		zap.String("source_ref", sourceRef),
		zap.String("reason", cause.Error()),
	)

	rejectedRef := ""
	if p.rejectedDir != "" {
		ref, err := p.writeRejected(sourceRef, raw, cause)
		if err != nil {
			logger.Error("Failed to store rejected upload", zap.Error(err))
		} else {
			rejectedRef = ref
		}
	}

	return &Result{
		Status:      StatusRejected,
		Detail:      cause.Error(),
		RejectedRef: rejectedRef,
	}, nil
}

func (p *Processor) writeRejected(sourceRef string, raw []byte, cause error) (string, error) {
	if err := os.MkdirAll(p.rejectedDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create rejected dir: %w", err)
	}

	name := filepath.Base(sourceRef)
	if name == "." || name == "" {
		name = "unnamed-upload"
	}

	// Unique per rejection so repeated rejects of the same name never
	// overwrite earlier evidence.
	name = fmt.Sprintf("%s_%s", uuid.New().String()[:8], name)

	target := filepath.Join(p.rejectedDir, name)
	if err := os.WriteFile(target, raw, 0644); err != nil {
		return "", fmt.Errorf("failed to write rejected file: %w", err)
	}

	detail := map[string]string{
		"original_ref": sourceRef,
		"error":        cause.Error(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	detailJSON, _ := json.MarshalIndent(detail, "", "  ")
	if err := os.WriteFile(target+".error.json", detailJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to write rejection detail: %w", err)
	}

	return target, nil
}
