package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// DailySalesRow aggregates one day of paid sales.
type DailySalesRow struct {
	Day              string          `json:"day"`
	TransactionCount int64           `json:"transaction_count"`
	GrossSales       decimal.Decimal `json:"gross_sales"`
	TotalDiscount    decimal.Decimal `json:"total_discount"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
}

// TopProductRow ranks a product by quantity sold within a range.
type TopProductRow struct {
	ProductID string          `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	QtySold   int64           `json:"qty_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// Repo aggregates sales figures straight from the transactions tables. Only
// PAID sales count; pending non-cash tenders are excluded until settled.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a Repo.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// DailySales returns per-day totals for [from, to).
func (r *Repo) DailySales(ctx context.Context, from, to time.Time) ([]DailySalesRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT created_at::date AS day, COUNT(*),
			SUM(gross_sales), SUM(total_discount), SUM(tax_amount), SUM(grand_total)
		FROM transactions
		WHERE payment_status = 'PAID' AND created_at >= $1 AND created_at < $2
		GROUP BY 1
		ORDER BY 1`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query daily sales: %w", err)
	}
	defer rows.Close()

	var out []DailySalesRow
	for rows.Next() {
		var day pgtype.Date
		var row DailySalesRow
		var gross, disc, tax, total pgtype.Numeric
		if err := rows.Scan(&day, &row.TransactionCount, &gross, &disc, &tax, &total); err != nil {
			return nil, fmt.Errorf("scan daily sales: %w", err)
		}
		row.Day = day.Time.Format("2006-01-02")
		row.GrossSales = db.NumericDecimal(gross)
		row.TotalDiscount = db.NumericDecimal(disc)
		row.TaxAmount = db.NumericDecimal(tax)
		row.GrandTotal = db.NumericDecimal(total)
		out = append(out, row)
	}
	return out, rows.Err()
}

// TopProducts returns the best sellers by quantity for [from, to).
func (r *Repo) TopProducts(ctx context.Context, from, to time.Time, limit int32) ([]TopProductRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ti.product_id, ti.product_sku, ti.product_name,
			SUM(ti.quantity)::bigint, SUM(ti.subtotal)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE t.payment_status = 'PAID' AND t.created_at >= $1 AND t.created_at < $2
		GROUP BY 1, 2, 3
		ORDER BY SUM(ti.quantity) DESC, 2
		LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	var out []TopProductRow
	for rows.Next() {
		var productID pgtype.UUID
		var row TopProductRow
		var revenue pgtype.Numeric
		if err := rows.Scan(&productID, &row.SKU, &row.Name, &row.QtySold, &revenue); err != nil {
			return nil, fmt.Errorf("scan top products: %w", err)
		}
		row.ProductID = db.UUIDString(productID)
		row.Revenue = db.NumericDecimal(revenue)
		out = append(out, row)
	}
	return out, rows.Err()
}
