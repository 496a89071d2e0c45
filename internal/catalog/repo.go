package catalog

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
)

// Product is a sellable item. Cost is nil when the merchant has not
// recorded a unit cost, which disables margin checks for that item.
type Product struct {
	ID        string           `json:"id"`
	SKU       string           `json:"sku"`
	Name      string           `json:"name"`
	Category  string           `json:"category"`
	Price     decimal.Decimal  `json:"price"`
	Cost      *decimal.Decimal `json:"cost,omitempty"`
	Stock     int32            `json:"stock"`
	IsActive  bool             `json:"is_active"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ListFilter captures product listing filters.
type ListFilter struct {
	Query    string
	Category string
	Active   *bool
	Limit    int
	Offset   int
}

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrDuplicateSKU indicates another product already uses the SKU.
	ErrDuplicateSKU = errors.New("catalog: sku already exists")
	// ErrInsufficientStock indicates a stock adjustment would go negative.
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
)

// Repo persists products in Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a Repo.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

const productColumns = `id, sku, name, category, price, cost, stock, is_active, created_at, updated_at`

// Insert stores a new product and fills generated fields.
func (r *Repo) Insert(ctx context.Context, p *Product) error {
	id := db.NewUUID()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, sku, name, category, price, cost, stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		id, p.SKU, p.Name, p.Category, db.ToNumeric(p.Price), db.ToNullableNumeric(p.Cost), p.Stock, p.IsActive,
	)
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&createdAt, &updatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSKU
		}
		return fmt.Errorf("insert product: %w", err)
	}
	p.ID = db.UUIDString(id)
	p.CreatedAt = db.Time(createdAt)
	p.UpdatedAt = db.Time(updatedAt)
	return nil
}

// GetByID fetches a product by its identifier.
func (r *Repo) GetByID(ctx context.Context, id string) (Product, error) {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return Product{}, ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, pgID)
	return scanProduct(row)
}

// GetBySKU fetches a product by SKU.
func (r *Repo) GetBySKU(ctx context.Context, sku string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	return scanProduct(row)
}

// List returns products matching the filter plus the total match count.
func (r *Repo) List(ctx context.Context, f ListFilter) ([]Product, int64, error) {
	where, args := buildListWhere(f)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY name ASC LIMIT $%d OFFSET $%d`,
		productColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate products: %w", err)
	}
	return products, total, nil
}

// Update overwrites mutable product fields.
func (r *Repo) Update(ctx context.Context, p *Product) error {
	pgID, err := db.ToUUID(p.ID)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET sku = $2, name = $3, category = $4, price = $5, cost = $6, stock = $7, is_active = $8, updated_at = now()
		WHERE id = $1`,
		pgID, p.SKU, p.Name, p.Category, db.ToNumeric(p.Price), db.ToNullableNumeric(p.Cost), p.Stock, p.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSKU
		}
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate marks a product inactive so it no longer appears in sales.
func (r *Repo) Deactivate(ctx context.Context, id string) error {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `UPDATE products SET is_active = false, updated_at = now() WHERE id = $1`, pgID)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Categories returns the distinct category names in use.
func (r *Repo) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT category FROM products WHERE category <> '' ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// AdjustStock applies a stock delta, refusing to go below zero.
func (r *Repo) AdjustStock(ctx context.Context, id string, delta int32) error {
	pgID, err := db.ToUUID(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0`,
		pgID, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInsufficientStock
	}
	return nil
}

func buildListWhere(f ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR sku ILIKE $%d)", len(args), len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		id                   pgtype.UUID
		price, cost          pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
		p                    Product
	)
	err := row.Scan(&id, &p.SKU, &p.Name, &p.Category, &price, &cost, &p.Stock, &p.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("scan product: %w", err)
	}
	p.ID = db.UUIDString(id)
	p.Price = db.NumericDecimal(price)
	p.Cost = db.NullableDecimal(cost)
	p.CreatedAt = db.Time(createdAt)
	p.UpdatedAt = db.Time(updatedAt)
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
