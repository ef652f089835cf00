package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/salesdata/backend/internal/storage/models"
)

// ValidationError marks malformed input. It is routed to the rejected store
// and never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

var validPaymentMethods = map[string]bool{
	"cash":      true,
	"credit":    true,
	"debit":     true,
	"gift_card": true,
}

// Decode parses a raw upload into transaction records, enforcing the upload
// schema. An empty transaction list is valid (a store can report a zero-sales
// day).
func Decode(raw []byte) ([]models.TransactionRecord, error) {
	var records []models.TransactionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, validationErrorf("invalid JSON: expected an array of transaction records: %v", err)
	}

	for i, r := range records {
		if err := validateRecord(i, r); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func validateRecord(index int, r models.TransactionRecord) *ValidationError {
	if r.TransactionID == "" {
		return validationErrorf("record %d: transaction_id is required", index)
	}
	if r.ItemSKU == "" {
		return validationErrorf("record %d: item_sku is required", index)
	}
	if r.ItemName == "" {
		return validationErrorf("record %d: item_name is required", index)
	}
	if r.Quantity <= 0 {
		return validationErrorf("record %d: quantity must be positive, got %d", index, r.Quantity)
	}
	if r.UnitPrice < 0 {
		return validationErrorf("record %d: unit_price must not be negative", index)
	}
	if r.LineTotal < 0 {
		return validationErrorf("record %d: line_total must not be negative", index)
	}
	if r.DiscountAmount < 0 {
		return validationErrorf("record %d: discount_amount must not be negative", index)
	}
	if !validPaymentMethods[r.PaymentMethod] {
		return validationErrorf("record %d: payment_method %q is not one of cash, credit, debit, gift_card", index, r.PaymentMethod)
	}
	if r.TransactionTimestamp != "" {
		if _, err := time.Parse(time.RFC3339, r.TransactionTimestamp); err != nil {
			return validationErrorf("record %d: transaction_timestamp %q is not RFC3339", index, r.TransactionTimestamp)
		}
	}
	return nil
}
