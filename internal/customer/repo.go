package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/engine"
)

// Customer is a loyalty program member.
type Customer struct {
	ID             string            `json:"id"`
	MemberCode     string            `json:"member_code"`
	Name           string            `json:"name"`
	Phone          string            `json:"phone"`
	Email          string            `json:"email,omitempty"`
	MemberType     engine.MemberTier `json:"member_type"`
	Points         int64             `json:"points"`
	LifetimeSpent  decimal.Decimal   `json:"lifetime_spent"`
	LifetimePoints int64             `json:"lifetime_points"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

var (
	// ErrNotFound indicates the customer does not exist.
	ErrNotFound = errors.New("customer: not found")
	// ErrDuplicatePhone indicates another member already uses the phone number.
	ErrDuplicatePhone = errors.New("customer: phone already registered")
	// ErrInsufficientPoints indicates a redemption exceeds the balance.
	ErrInsufficientPoints = errors.New("customer: insufficient points")
)

// Repo persists customers in Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a Repo.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const customerColumns = `id, member_code, name, phone, email, member_type, points, lifetime_spent, lifetime_points, created_at, updated_at`

// Insert stores a new customer and fills generated fields.
func (r *Repo) Insert(ctx context.Context, c *Customer) error {
	id := db.NewUUID()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, member_code, name, phone, email, member_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		id, c.MemberCode, c.Name, c.Phone, db.ToText(c.Email), string(c.MemberType),
	)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&createdAt, &updatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	c.ID = db.UUIDString(id)
	c.Points = 0
	c.LifetimeSpent = decimal.Zero
	c.LifetimePoints = 0
	c.CreatedAt = db.Time(createdAt)
	c.UpdatedAt = db.Time(updatedAt)
	return nil
}

// GetByID fetches a customer by identifier.
func (r *Repo) GetByID(ctx context.Context, id string) (Customer, error) {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return Customer{}, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, pgID)
	return scanCustomer(row)
}

// GetByPhone fetches a customer by phone number.
func (r *Repo) GetByPhone(ctx context.Context, phone string) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone)
	return scanCustomer(row)
}

// GetByMemberCode fetches a customer by member code.
func (r *Repo) GetByMemberCode(ctx context.Context, code string) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE member_code = $1`, code)
	return scanCustomer(row)
}

// List returns customers matching the search term plus the total count.
func (r *Repo) List(ctx context.Context, search string, limit, offset int) ([]Customer, int64, error) {
	var (
		where string
		args  []any
	)
	if q := strings.TrimSpace(search); q != "" {
		where = ` WHERE name ILIKE $1 OR phone ILIKE $1 OR member_code ILIKE $1`
		args = append(args, "%"+q+"%")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM customers%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		customerColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, total, nil
}

// Update overwrites profile fields and the membership tier.
func (r *Repo) Update(ctx context.Context, c *Customer) error {
	pgID, err := db.ToUUID(c.ID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, member_type = $5, updated_at = now()
		WHERE id = $1`,
		pgID, c.Name, c.Phone, db.ToText(c.Email), string(c.MemberType),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("update customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyPointsDelta atomically adjusts the point balance and lifetime
// counters. Earned points also increase lifetime_points; redeemed points
// only reduce the balance. The balance is never allowed below zero.
func (r *Repo) ApplyPointsDelta(ctx context.Context, id string, earned, redeemed int64, spent decimal.Decimal) (Customer, error) {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return Customer{}, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE customers
		SET points = points + $2 - $3,
		    lifetime_points = lifetime_points + $2,
		    lifetime_spent = lifetime_spent + $4,
		    updated_at = now()
		WHERE id = $1 AND points + $2 - $3 >= 0
		RETURNING `+customerColumns,
		pgID, earned, redeemed, db.ToNumeric(spent),
	)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return Customer{}, getErr
			}
			return Customer{}, ErrInsufficientPoints
		}
		return Customer{}, err
	}
	return c, nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var (
		id                   pgtype.UUID
		email                pgtype.Text
		memberType           string
		lifetimeSpent        pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
		c                    Customer
	)
	err := row.Scan(&id, &c.MemberCode, &c.Name, &c.Phone, &email, &memberType,
		&c.Points, &lifetimeSpent, &c.LifetimePoints, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("scan customer: %w", err)
	}
	c.ID = db.UUIDString(id)
	c.Email = db.TextString(email)
	c.MemberType = engine.MemberTier(memberType)
	c.LifetimeSpent = db.NumericDecimal(lifetimeSpent)
	c.CreatedAt = db.Time(createdAt)
	c.UpdatedAt = db.Time(updatedAt)
	return c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
