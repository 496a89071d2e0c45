package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// PaymentType enumerates accepted tender kinds.
type PaymentType string

const (
	PaymentCash    PaymentType = "CASH"
	PaymentQRIS    PaymentType = "QRIS"
	PaymentCard    PaymentType = "CARD"
	PaymentEwallet PaymentType = "EWALLET"
)

// Valid reports whether the payment type is known.
func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCash, PaymentQRIS, PaymentCard, PaymentEwallet:
		return true
	}
	return false
}

// PaymentStatus enumerates settlement states.
type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "PAID"
	StatusPending PaymentStatus = "PENDING"
)

// Transaction is a finalized, immutable sale record carrying the full
// financial breakdown as computed at the moment of finalization.
type Transaction struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	CustomerID    string        `json:"customer_id,omitempty"`
	DiscountCode  string        `json:"discount_code,omitempty"`
	PaymentType   PaymentType   `json:"payment_type"`
	PaymentStatus PaymentStatus `json:"payment_status"`

	GrossSales            decimal.Decimal `json:"gross_sales"`
	ItemDiscounts         decimal.Decimal `json:"item_discounts"`
	TransactionDiscount   decimal.Decimal `json:"transaction_discount"`
	TotalDiscount         decimal.Decimal `json:"total_discount"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	LoyaltyRedemption     decimal.Decimal `json:"loyalty_redemption"`
	PointsRedeemed        int64           `json:"points_redeemed"`
	DPP                   decimal.Decimal `json:"dpp"`
	TaxRate               decimal.Decimal `json:"tax_rate"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	PointsEarned          int64           `json:"points_earned"`

	AmountPaid decimal.Decimal `json:"amount_paid"`
	Change     decimal.Decimal `json:"change"`

	CreatedAt time.Time `json:"created_at"`
}

// Item is one persisted line of a finalized sale.
type Item struct {
	ProductID string           `json:"product_id"`
	SKU       string           `json:"product_sku"`
	Name      string           `json:"product_name"`
	Qty       int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
}

// ListFilter captures transaction listing filters.
type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Status PaymentStatus
	Limit  int
	Offset int
}

// CoretaxRow is one line of the tax authority export.
type CoretaxRow struct {
	TanggalFaktur   string          `json:"tanggal_faktur"`
	NomorFaktur     string          `json:"nomor_faktur"`
	DPP             decimal.Decimal `json:"dpp"`
	PPN             decimal.Decimal `json:"ppn"`
	TarifPPN        decimal.Decimal `json:"tarif_ppn"`
	StatusPembayaran string         `json:"status_pembayaran"`
}

var (
	// ErrNotFound indicates the transaction does not exist.
	ErrNotFound = errors.New("transaction: not found")
	// ErrStockConflict indicates a line could not be deducted from stock.
	ErrStockConflict = errors.New("transaction: insufficient stock")
)

// Repo persists finalized sales in Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a Repo.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const txColumns = `id, invoice_number, customer_id, discount_code, payment_type, payment_status,
	gross_sales, item_discounts, transaction_discount, total_discount, subtotal_after_discount,
	loyalty_redemption, points_redeemed, dpp, tax_rate, tax_amount, grand_total, points_earned,
	amount_paid, change, created_at`

// Create stores the transaction with its items and deducts stock, all in a
// single database transaction.
func (r *Repo) Create(ctx context.Context, t *Transaction, items []Item) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	id := db.NewUUID()
	var customerID pgtype.UUID
	if t.CustomerID != "" {
		customerID, err = db.ToUUID(t.CustomerID)
		if err != nil {
			return fmt.Errorf("parse customer id: %w", err)
		}
	}
	var createdAt pgtype.Timestamptz
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (
			id, invoice_number, customer_id, discount_code, payment_type, payment_status,
			gross_sales, item_discounts, transaction_discount, total_discount, subtotal_after_discount,
			loyalty_redemption, points_redeemed, dpp, tax_rate, tax_amount, grand_total, points_earned,
			amount_paid, change
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING created_at`,
		id, t.InvoiceNumber, customerID, db.ToText(t.DiscountCode), string(t.PaymentType), string(t.PaymentStatus),
		db.ToNumeric(t.GrossSales), db.ToNumeric(t.ItemDiscounts), db.ToNumeric(t.TransactionDiscount),
		db.ToNumeric(t.TotalDiscount), db.ToNumeric(t.SubtotalAfterDiscount),
		db.ToNumeric(t.LoyaltyRedemption), t.PointsRedeemed, db.ToNumeric(t.DPP),
		db.ToNumeric(t.TaxRate), db.ToNumeric(t.TaxAmount), db.ToNumeric(t.GrandTotal), t.PointsEarned,
		db.ToNumeric(t.AmountPaid), db.ToNumeric(t.Change),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	for _, item := range items {
		productID, err := db.ToUUID(item.ProductID)
		if err != nil {
			return fmt.Errorf("parse product id: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO transaction_items (id, transaction_id, product_id, product_sku, product_name, quantity, unit_price, unit_cost, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			db.NewUUID(), id, productID, item.SKU, item.Name, item.Qty,
			db.ToNumeric(item.UnitPrice), db.ToNullableNumeric(item.UnitCost), db.ToNumeric(item.Subtotal),
		)
		if err != nil {
			return fmt.Errorf("insert transaction item: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2`,
			productID, item.Qty,
		)
		if err != nil {
			return fmt.Errorf("deduct stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStockConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	t.ID = db.UUIDString(id)
	t.CreatedAt = db.Time(createdAt)
	return nil
}

// GetByID fetches a transaction with its items.
func (r *Repo) GetByID(ctx context.Context, id string) (Transaction, []Item, error) {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return Transaction{}, nil, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, pgID)
	t, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT product_id, product_sku, product_name, quantity, unit_price, unit_cost, subtotal
		FROM transaction_items WHERE transaction_id = $1 ORDER BY product_name`, pgID)
	if err != nil {
		return Transaction{}, nil, fmt.Errorf("list transaction items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			productID            pgtype.UUID
			unitPrice, unitCost  pgtype.Numeric
			subtotal             pgtype.Numeric
			item                 Item
		)
		if err := rows.Scan(&productID, &item.SKU, &item.Name, &item.Qty, &unitPrice, &unitCost, &subtotal); err != nil {
			return Transaction{}, nil, fmt.Errorf("scan transaction item: %w", err)
		}
		item.ProductID = db.UUIDString(productID)
		item.UnitPrice = db.NumericDecimal(unitPrice)
		item.UnitCost = db.NullableDecimal(unitCost)
		item.Subtotal = db.NumericDecimal(subtotal)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return Transaction{}, nil, fmt.Errorf("iterate transaction items: %w", err)
	}
	return t, items, nil
}

// List returns transactions matching the filter plus the total count.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Transaction, int64, error) {
	where, args := buildListWhere(f)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM transactions%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		txColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}
	return transactions, total, nil
}

// SetPaymentStatus updates the settlement state.
func (r *Repo) SetPaymentStatus(ctx context.Context, id string, status PaymentStatus) error {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `UPDATE transactions SET payment_status = $2 WHERE id = $1`, pgID, string(status))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExportRows returns the Coretax export lines for the date range.
func (r *Repo) ExportRows(ctx context.Context, from, to time.Time) ([]CoretaxRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT created_at, invoice_number, dpp, tax_amount, tax_rate, payment_status
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at`,
		db.ToTimestamptz(from), db.ToTimestamptz(to))
	if err != nil {
		return nil, fmt.Errorf("export transactions: %w", err)
	}
	defer rows.Close()

	var export []CoretaxRow
	for rows.Next() {
		var (
			createdAt          pgtype.Timestamptz
			dpp, ppn, tarif    pgtype.Numeric
			invoice, status    string
		)
		if err := rows.Scan(&createdAt, &invoice, &dpp, &ppn, &tarif, &status); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		export = append(export, CoretaxRow{
			TanggalFaktur:    db.Time(createdAt).Format("2006-01-02"),
			NomorFaktur:      invoice,
			DPP:              db.NumericDecimal(dpp),
			PPN:              db.NumericDecimal(ppn),
			TarifPPN:         db.NumericDecimal(tarif),
			StatusPembayaran: status,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export rows: %w", err)
	}
	return export, nil
}

func buildListWhere(f ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.From != nil {
		args = append(args, db.ToTimestamptz(*f.From))
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, db.ToTimestamptz(*f.To))
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		id           pgtype.UUID
		customerID   pgtype.UUID
		discountCode pgtype.Text
		paymentType  string
		status       string
		grossSales, itemDiscounts, transactionDiscount, totalDiscount pgtype.Numeric
		subtotalAfterDiscount, loyaltyRedemption                      pgtype.Numeric
		dpp, taxRate, taxAmount, grandTotal                           pgtype.Numeric
		amountPaid, change                                            pgtype.Numeric
		createdAt                                                     pgtype.Timestamptz
		t                                                             Transaction
	)
	err := row.Scan(&id, &t.InvoiceNumber, &customerID, &discountCode, &paymentType, &status,
		&grossSales, &itemDiscounts, &transactionDiscount, &totalDiscount, &subtotalAfterDiscount,
		&loyaltyRedemption, &t.PointsRedeemed, &dpp, &taxRate, &taxAmount, &grandTotal, &t.PointsEarned,
		&amountPaid, &change, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	t.ID = db.UUIDString(id)
	t.CustomerID = db.UUIDString(customerID)
	t.DiscountCode = db.TextString(discountCode)
	t.PaymentType = PaymentType(paymentType)
	t.PaymentStatus = PaymentStatus(status)
	t.GrossSales = db.NumericDecimal(grossSales)
	t.ItemDiscounts = db.NumericDecimal(itemDiscounts)
	t.TransactionDiscount = db.NumericDecimal(transactionDiscount)
	t.TotalDiscount = db.NumericDecimal(totalDiscount)
	t.SubtotalAfterDiscount = db.NumericDecimal(subtotalAfterDiscount)
	t.LoyaltyRedemption = db.NumericDecimal(loyaltyRedemption)
	t.DPP = db.NumericDecimal(dpp)
	t.TaxRate = db.NumericDecimal(taxRate)
	t.TaxAmount = db.NumericDecimal(taxAmount)
	t.GrandTotal = db.NumericDecimal(grandTotal)
	t.AmountPaid = db.NumericDecimal(amountPaid)
	t.Change = db.NumericDecimal(change)
	t.CreatedAt = db.Time(createdAt)
	return t, nil
}
