package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdata/backend/internal/storage/models"
)

func txn(id, sku, name string, qty int, lineTotal, discount float64, payment string) models.TransactionRecord {
	return models.TransactionRecord{
		TransactionID:  id,
		ItemSKU:        sku,
		ItemName:       name,
		Quantity:       qty,
		UnitPrice:      lineTotal / float64(qty),
		LineTotal:      lineTotal,
		DiscountAmount: discount,
		PaymentMethod:  payment,
	}
}

func TestComputeStoreSummary(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("basic totals", func(t *testing.T) {
		transactions := []models.TransactionRecord{
			txn("t1", "SKU-001", "Coffee", 1, 10.00, 0, "cash"),
			txn("t2", "SKU-002", "Tea", 2, 20.00, 0, "credit"),
		}

		s := ComputeStoreSummary("0003", "2026-03-15", transactions, "store_0003_2026-03-15.json", now)

		assert.Equal(t, "0003", s.StoreID)
		assert.Equal(t, "2026-03-15", s.Date)
		assert.Equal(t, 30.00, s.TotalSales)
		assert.Equal(t, 0.00, s.TotalDiscount)
		assert.Equal(t, 30.00, s.NetSales)
		assert.Equal(t, 2, s.TransactionCount)
		assert.Equal(t, 3, s.ItemCount)
		assert.Equal(t, 15.00, s.AvgTransaction)
		assert.Equal(t, 2, s.RecordCount)
	})

	t.Run("zero transactions is a valid day", func(t *testing.T) {
		s := ComputeStoreSummary("0007", "2026-03-15", nil, "store_0007_2026-03-15.json", now)

		assert.Equal(t, 0.00, s.TotalSales)
		assert.Equal(t, 0, s.TransactionCount)
		assert.Equal(t, 0.00, s.AvgTransaction)
		assert.Empty(t, s.TopProducts)
		// All four payment methods present even with no sales.
		assert.Len(t, s.PaymentBreakdown, 4)
		for _, method := range models.PaymentMethods {
			assert.Equal(t, 0.00, s.PaymentBreakdown[method])
		}
	})

	t.Run("discounts reduce net but not gross", func(t *testing.T) {
		transactions := []models.TransactionRecord{
			txn("t1", "SKU-001", "Coffee", 1, 50.00, 5.00, "debit"),
		}

		s := ComputeStoreSummary("0001", "2026-03-15", transactions, "ref", now)

		assert.Equal(t, 50.00, s.TotalSales)
		assert.Equal(t, 5.00, s.TotalDiscount)
		assert.Equal(t, 45.00, s.NetSales)
		// Payment breakdown is net of discount.
		assert.Equal(t, 45.00, s.PaymentBreakdown["debit"])
	})

	t.Run("float inputs sum exactly", func(t *testing.T) {
		transactions := []models.TransactionRecord{
			txn("t1", "SKU-001", "Coffee", 1, 0.10, 0, "cash"),
			txn("t2", "SKU-001", "Coffee", 1, 0.20, 0, "cash"),
		}

		s := ComputeStoreSummary("0001", "2026-03-15", transactions, "ref", now)

		assert.Equal(t, 0.30, s.TotalSales)
		assert.Equal(t, 0.30, s.PaymentBreakdown["cash"])
	})

	t.Run("product ranking by revenue with sku tiebreak", func(t *testing.T) {
		transactions := []models.TransactionRecord{
			txn("t1", "SKU-B", "Beta", 1, 10.00, 0, "cash"),
			txn("t2", "SKU-A", "Alpha", 1, 10.00, 0, "cash"),
			txn("t3", "SKU-C", "Gamma", 1, 99.00, 0, "cash"),
		}

		s := ComputeStoreSummary("0001", "2026-03-15", transactions, "ref", now)

		require.Len(t, s.TopProducts, 3)
		assert.Equal(t, "SKU-C", s.TopProducts[0].SKU)
		assert.Equal(t, "SKU-A", s.TopProducts[1].SKU)
		assert.Equal(t, "SKU-B", s.TopProducts[2].SKU)
	})

	t.Run("top products truncated", func(t *testing.T) {
		var transactions []models.TransactionRecord
		for i := 0; i < 15; i++ {
			sku := string(rune('A'+i)) + "-SKU"
			transactions = append(transactions, txn("t", sku, "Item", 1, float64(100-i), 0, "cash"))
		}

		s := ComputeStoreSummary("0001", "2026-03-15", transactions, "ref", now)

		assert.Len(t, s.TopProducts, topProductLimit)
		assert.Equal(t, "A-SKU", s.TopProducts[0].SKU)
	})

	t.Run("order independent", func(t *testing.T) {
		a := []models.TransactionRecord{
			txn("t1", "SKU-1", "One", 1, 12.34, 1.00, "cash"),
			txn("t2", "SKU-2", "Two", 2, 56.78, 0, "credit"),
			txn("t3", "SKU-1", "One", 1, 9.99, 0, "gift_card"),
		}
		b := []models.TransactionRecord{a[2], a[0], a[1]}

		sa := ComputeStoreSummary("0001", "2026-03-15", a, "ref", now)
		sb := ComputeStoreSummary("0001", "2026-03-15", b, "ref", now)

		assert.Equal(t, sa.TotalSales, sb.TotalSales)
		assert.Equal(t, sa.NetSales, sb.NetSales)
		assert.Equal(t, sa.TopProducts, sb.TopProducts)
		assert.Equal(t, sa.PaymentBreakdown, sb.PaymentBreakdown)
	})
}
