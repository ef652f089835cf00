package ingestion

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/salesdata/backend/internal/storage/models"
)

const topProductLimit = 10

type productAccumulator struct {
	name    string
	units   int
	revenue decimal.Decimal
}

// ComputeStoreSummary aggregates one store-date's transactions into a
// StoreSummary. Pure and deterministic: same input, same output, regardless
// of record order.
func ComputeStoreSummary(storeID, date string, transactions []models.TransactionRecord, sourceRef string, now time.Time) *models.StoreSummary {
	totalSales := decimal.Zero
	totalDiscount := decimal.Zero
	totalItems := 0

	paymentTotals := make(map[string]decimal.Decimal, len(models.PaymentMethods))
	for _, method := range models.PaymentMethods {
		paymentTotals[method] = decimal.Zero
	}
	products := make(map[string]*productAccumulator)

	for _, txn := range transactions {
		lineTotal := decimal.NewFromFloat(txn.LineTotal)
		discount := decimal.NewFromFloat(txn.DiscountAmount)
		net := lineTotal.Sub(discount)

		totalSales = totalSales.Add(lineTotal)
		totalDiscount = totalDiscount.Add(discount)
		totalItems += txn.Quantity

		paymentTotals[txn.PaymentMethod] = paymentTotals[txn.PaymentMethod].Add(net)

		acc, ok := products[txn.ItemSKU]
		if !ok {
			acc = &productAccumulator{name: txn.ItemName}
			products[txn.ItemSKU] = acc
		}
		acc.units += txn.Quantity
		acc.revenue = acc.revenue.Add(net)
	}

	netSales := totalSales.Sub(totalDiscount)
	transactionCount := len(transactions)

	avgTransaction := decimal.Zero
	if transactionCount > 0 {
		avgTransaction = totalSales.Div(decimal.NewFromInt(int64(transactionCount)))
	}

	topProducts := rankProducts(products)

	paymentBreakdown := make(map[string]float64, len(paymentTotals))
	for method, amount := range paymentTotals {
		paymentBreakdown[method] = round2(amount)
	}

	return &models.StoreSummary{
		StoreID:          storeID,
		Date:             date,
		TotalSales:       round2(totalSales),
		TotalDiscount:    round2(totalDiscount),
		NetSales:         round2(netSales),
		TransactionCount: transactionCount,
		ItemCount:        totalItems,
		AvgTransaction:   round2(avgTransaction),
		TopProducts:      topProducts,
		PaymentBreakdown: paymentBreakdown,
		RecordCount:      transactionCount,
		SourceRef:        sourceRef,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// rankProducts orders by revenue descending, SKU ascending on ties, and
// truncates to the top 10.
func rankProducts(products map[string]*productAccumulator) []models.ProductSales {
	ranked := make([]models.ProductSales, 0, len(products))
	for sku, acc := range products {
		ranked = append(ranked, models.ProductSales{
			SKU:     sku,
			Name:    acc.name,
			Units:   acc.units,
			Revenue: round2(acc.revenue),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Revenue != ranked[j].Revenue {
			return ranked[i].Revenue > ranked[j].Revenue
		}
		return ranked[i].SKU < ranked[j].SKU
	})

	if len(ranked) > topProductLimit {
		ranked = ranked[:topProductLimit]
	}
	return ranked
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
