package gate

import (
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/salesdata/backend/internal/metrics"
	"github.com/salesdata/backend/internal/storage/sqlite"
	"github.com/salesdata/backend/pkg/logger"
)

// Status is the outcome of one completion check for a date.
type Status struct {
	Date          string   `json:"date"`
	Complete      bool     `json:"complete"`
	Reported      []string `json:"stores_reported"`
	Missing       []string `json:"stores_missing"`
	TotalExpected int      `json:"total_expected"`
	TotalReported int      `json:"total_reported"`
}

// Gate decides whether all expected stores have reported for a date. Checks
// are monotonic, not edge-triggered: a redundant check after completion
// reports complete again. Duplicate "complete" notifications are expected;
// the orchestrator's run claim absorbs them.
type Gate struct {
	db       *sqlite.Client
	expected []string
}

func New(db *sqlite.Client, expectedStores []string) *Gate {
	expected := make([]string, len(expectedStores))
	copy(expected, expectedStores)
	sort.Strings(expected)

	return &Gate{
		db:       db,
		expected: expected,
	}
}

func (g *Gate) Check(date string) (*Status, error) {
	reported, err := g.db.ListUploadedStores(date)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploaded stores: %w", err)
	}

	reportedSet := make(map[string]bool, len(reported))
	for _, s := range reported {
		reportedSet[s] = true
	}

	var missing []string
	for _, s := range g.expected {
		if !reportedSet[s] {
			missing = append(missing, s)
		}
	}

	status := &Status{
		Date:          date,
		Complete:      len(missing) == 0,
		Reported:      reported,
		Missing:       missing,
		TotalExpected: len(g.expected),
		TotalReported: len(reported),
	}

	metrics.GateChecks.WithLabelValues(strconv.FormatBool(status.Complete)).Inc()

	if status.Complete {
		logger.Info("All stores have reported", zap.String("date", date))
	} else {
		logger.Info("Stores still missing",
			zap.String("date", date),
			zap.Strings("missing", missing),
		)
	}

	return status, nil
}
