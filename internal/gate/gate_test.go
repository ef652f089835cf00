package gate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesdata/backend/internal/storage/models"
	"github.com/salesdata/backend/internal/storage/sqlite"
)

var expectedStores = []string{
	"0001", "0002", "0003", "0004", "0005", "0006",
	"0007", "0008", "0009", "0010", "0011",
}

func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()
	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())
	return db
}

func recordUpload(t *testing.T, db *sqlite.Client, storeID, date string) {
	t.Helper()
	now := time.Now().UTC()
	summary := &models.StoreSummary{
		StoreID:          storeID,
		Date:             date,
		TopProducts:      []models.ProductSales{},
		PaymentBreakdown: map[string]float64{},
		SourceRef:        fmt.Sprintf("store_%s_%s.json", storeID, date),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	upload := &models.UploadRecord{
		Date:       date,
		StoreID:    storeID,
		UploadedAt: now,
		SourceRef:  summary.SourceRef,
		Status:     "processed",
	}
	require.NoError(t, db.WriteIngestion(summary, upload))
}

func TestGateCheck(t *testing.T) {
	const date = "2026-03-15"

	t.Run("incomplete until every store reports", func(t *testing.T) {
		db := newTestDB(t)
		g := New(db, expectedStores)

		for i, store := range expectedStores[:10] {
			recordUpload(t, db, store, date)

			status, err := g.Check(date)
			require.NoError(t, err)
			assert.False(t, status.Complete, "complete after only %d stores", i+1)
			assert.Equal(t, i+1, status.TotalReported)
			assert.Len(t, status.Missing, len(expectedStores)-i-1)
		}

		recordUpload(t, db, "0011", date)

		status, err := g.Check(date)
		require.NoError(t, err)
		assert.True(t, status.Complete)
		assert.Empty(t, status.Missing)
		assert.Equal(t, 11, status.TotalReported)
	})

	t.Run("monotonic after completion", func(t *testing.T) {
		db := newTestDB(t)
		g := New(db, expectedStores)

		for _, store := range expectedStores {
			recordUpload(t, db, store, date)
		}

		// A re-upload after completion checks complete again, not false.
		recordUpload(t, db, "0004", date)

		status, err := g.Check(date)
		require.NoError(t, err)
		assert.True(t, status.Complete)
		assert.Equal(t, 11, status.TotalReported)
	})

	t.Run("unexpected store does not complete the set", func(t *testing.T) {
		db := newTestDB(t)
		g := New(db, []string{"0001", "0002"})

		recordUpload(t, db, "0001", date)
		recordUpload(t, db, "0099", date)

		status, err := g.Check(date)
		require.NoError(t, err)
		assert.False(t, status.Complete)
		assert.Equal(t, []string{"0002"}, status.Missing)
	})

	t.Run("dates are independent", func(t *testing.T) {
		db := newTestDB(t)
		g := New(db, []string{"0001"})

		recordUpload(t, db, "0001", "2026-03-14")

		status, err := g.Check(date)
		require.NoError(t, err)
		assert.False(t, status.Complete)
	})
}
