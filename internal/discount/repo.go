package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/engine"
)

// Discount is a transaction-level promotion redeemable by code.
type Discount struct {
	ID          string              `json:"id"`
	Code        string              `json:"code"`
	Name        string              `json:"name"`
	Kind        engine.DiscountKind `json:"type"`
	Value       decimal.Decimal     `json:"value"`
	MinPurchase decimal.Decimal     `json:"min_purchase"`
	MaxDiscount *decimal.Decimal    `json:"max_discount,omitempty"`
	UsageLimit  *int32              `json:"usage_limit,omitempty"`
	UsageCount  int32               `json:"usage_count"`
	ValidFrom   *time.Time          `json:"valid_from,omitempty"`
	ValidUntil  *time.Time          `json:"valid_until,omitempty"`
	IsActive    bool                `json:"is_active"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

var (
	// ErrNotFound indicates the discount does not exist.
	ErrNotFound = errors.New("discount: not found")
	// ErrDuplicateCode indicates the code is already taken.
	ErrDuplicateCode = errors.New("discount: code already exists")
	// ErrExhausted indicates the usage limit has been reached.
	ErrExhausted = errors.New("discount: usage limit reached")
)

// Repo persists discounts in Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a Repo.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const discountColumns = `id, code, name, kind, value, min_purchase, max_discount, usage_limit, usage_count, valid_from, valid_until, is_active, created_at, updated_at`

// Insert stores a new discount and fills generated fields.
func (r *Repo) Insert(ctx context.Context, d *Discount) error {
	id := db.NewUUID()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO discounts (id, code, name, kind, value, min_purchase, max_discount, usage_limit, valid_from, valid_until, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		id, d.Code, d.Name, string(d.Kind), db.ToNumeric(d.Value), db.ToNumeric(d.MinPurchase),
		db.ToNullableNumeric(d.MaxDiscount), d.UsageLimit,
		db.ToNullableTimestamptz(d.ValidFrom), db.ToNullableTimestamptz(d.ValidUntil), d.IsActive,
	)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&createdAt, &updatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert discount: %w", err)
	}
	d.ID = db.UUIDString(id)
	d.UsageCount = 0
	d.CreatedAt = db.Time(createdAt)
	d.UpdatedAt = db.Time(updatedAt)
	return nil
}

// GetByID fetches a discount by identifier.
func (r *Repo) GetByID(ctx context.Context, id string) (Discount, error) {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return Discount{}, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+discountColumns+` FROM discounts WHERE id = $1`, pgID)
	return scanDiscount(row)
}

// GetByCode fetches a discount by its redemption code.
func (r *Repo) GetByCode(ctx context.Context, code string) (Discount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+discountColumns+` FROM discounts WHERE code = $1`, code)
	return scanDiscount(row)
}

// List returns discounts plus the total count. When activeOnly is set only
// currently active discounts are returned.
func (r *Repo) List(ctx context.Context, activeOnly bool, limit, offset int) ([]Discount, int64, error) {
	where := ""
	if activeOnly {
		where = ` WHERE is_active`
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM discounts`+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count discounts: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+discountColumns+` FROM discounts`+where+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list discounts: %w", err)
	}
	defer rows.Close()

	var discounts []Discount
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, 0, err
		}
		discounts = append(discounts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate discounts: %w", err)
	}
	return discounts, total, nil
}

// Update overwrites mutable discount fields.
func (r *Repo) Update(ctx context.Context, d *Discount) error {
	pgID, err := db.ToUUID(d.ID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE discounts
		SET code = $2, name = $3, kind = $4, value = $5, min_purchase = $6, max_discount = $7,
		    usage_limit = $8, valid_from = $9, valid_until = $10, is_active = $11, updated_at = now()
		WHERE id = $1`,
		pgID, d.Code, d.Name, string(d.Kind), db.ToNumeric(d.Value), db.ToNumeric(d.MinPurchase),
		db.ToNullableNumeric(d.MaxDiscount), d.UsageLimit,
		db.ToNullableTimestamptz(d.ValidFrom), db.ToNullableTimestamptz(d.ValidUntil), d.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("update discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate marks a discount inactive.
func (r *Repo) Deactivate(ctx context.Context, id string) error {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `UPDATE discounts SET is_active = false, updated_at = now() WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("deactivate discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage bumps usage_count, failing when the limit is exhausted.
func (r *Repo) IncrementUsage(ctx context.Context, id string) error {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE discounts SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		pgID,
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrExhausted
	}
	return nil
}

func scanDiscount(row pgx.Row) (Discount, error) {
	var (
		id                    pgtype.UUID
		kind                  string
		value, minPurchase    pgtype.Numeric
		maxDiscount           pgtype.Numeric
		validFrom, validUntil pgtype.Timestamptz
		createdAt, updatedAt  pgtype.Timestamptz
		d                     Discount
	)
	err := row.Scan(&id, &d.Code, &d.Name, &kind, &value, &minPurchase, &maxDiscount,
		&d.UsageLimit, &d.UsageCount, &validFrom, &validUntil, &d.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Discount{}, ErrNotFound
		}
		return Discount{}, fmt.Errorf("scan discount: %w", err)
	}
	d.ID = db.UUIDString(id)
	d.Kind = engine.DiscountKind(kind)
	d.Value = db.NumericDecimal(value)
	d.MinPurchase = db.NumericDecimal(minPurchase)
	d.MaxDiscount = db.NullableDecimal(maxDiscount)
	d.ValidFrom = db.NullableTime(validFrom)
	d.ValidUntil = db.NullableTime(validUntil)
	d.CreatedAt = db.Time(createdAt)
	d.UpdatedAt = db.Time(updatedAt)
	return d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
