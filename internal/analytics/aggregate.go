// Package analytics holds the pure cross-store aggregations computed by the
// daily analysis run. CompanyMetrics and ProductMetrics are recomputed
// wholesale from the date's store summaries on every run.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/salesdata/backend/internal/storage/models"
)

func ComputeCompanyMetrics(date string, summaries []models.StoreSummary, now time.Time) *models.CompanyMetrics {
	if len(summaries) == 0 {
		return nil
	}

	var totalSales float64
	var totalTransactions, totalItems int
	storesReported := make([]string, 0, len(summaries))
	paymentTotals := make(map[string]float64, len(models.PaymentMethods))
	for _, method := range models.PaymentMethods {
		paymentTotals[method] = 0
	}

	for _, s := range summaries {
		totalSales += s.TotalSales
		totalTransactions += s.TransactionCount
		totalItems += s.ItemCount
		storesReported = append(storesReported, s.StoreID)
		for method, amount := range s.PaymentBreakdown {
			paymentTotals[method] += amount
		}
	}
	sort.Strings(storesReported)

	// Deterministic regardless of fetch order: sales desc, store id asc.
	ranked := make([]models.StoreSummary, len(summaries))
	copy(ranked, summaries)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].TotalSales != ranked[j].TotalSales {
			return ranked[i].TotalSales > ranked[j].TotalSales
		}
		return ranked[i].StoreID < ranked[j].StoreID
	})

	best := ranked[0]
	worst := ranked[len(ranked)-1]

	avgTransaction := 0.0
	if totalTransactions > 0 {
		avgTransaction = totalSales / float64(totalTransactions)
	}

	for method, amount := range paymentTotals {
		paymentTotals[method] = round2(amount)
	}

	return &models.CompanyMetrics{
		Date:              date,
		TotalSales:        round2(totalSales),
		TotalTransactions: totalTransactions,
		TotalItems:        totalItems,
		StoreCount:        len(summaries),
		StoresReported:    storesReported,
		AvgTransaction:    round2(avgTransaction),
		AvgStoreSales:     round2(totalSales / float64(len(summaries))),
		BestStore:         &models.StoreSales{StoreID: best.StoreID, TotalSales: best.TotalSales},
		WorstStore:        &models.StoreSales{StoreID: worst.StoreID, TotalSales: worst.TotalSales},
		PaymentBreakdown:  paymentTotals,
		CreatedAt:         now,
	}
}

// AggregateProducts folds every store's ranked product list into one
// company-wide ranking for the date.
func AggregateProducts(date string, summaries []models.StoreSummary) []models.ProductMetrics {
	type accumulator struct {
		name    string
		units   int
		revenue float64
		stores  []string
		seen    map[string]bool
	}

	aggregates := make(map[string]*accumulator)

	for _, summary := range summaries {
		for _, product := range summary.TopProducts {
			if product.SKU == "" {
				continue
			}

			acc, ok := aggregates[product.SKU]
			if !ok {
				acc = &accumulator{name: product.Name, seen: make(map[string]bool)}
				aggregates[product.SKU] = acc
			}
			acc.units += product.Units
			acc.revenue += product.Revenue
			if !acc.seen[summary.StoreID] {
				acc.seen[summary.StoreID] = true
				acc.stores = append(acc.stores, summary.StoreID)
			}
		}
	}

	products := make([]models.ProductMetrics, 0, len(aggregates))
	for sku, acc := range aggregates {
		sort.Strings(acc.stores)
		products = append(products, models.ProductMetrics{
			Date:       date,
			SKU:        sku,
			Name:       acc.name,
			UnitsSold:  acc.units,
			Revenue:    round2(acc.revenue),
			Stores:     acc.stores,
			StoreCount: len(acc.stores),
		})
	}

	sort.Slice(products, func(i, j int) bool {
		if products[i].Revenue != products[j].Revenue {
			return products[i].Revenue > products[j].Revenue
		}
		return products[i].SKU < products[j].SKU
	})

	return products
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
