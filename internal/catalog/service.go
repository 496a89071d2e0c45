package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
)

type repository interface {
	Insert(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id string) (Product, error)
	GetBySKU(ctx context.Context, sku string) (Product, error)
	List(ctx context.Context, f ListFilter) ([]Product, int64, error)
	Update(ctx context.Context, p *Product) error
	Deactivate(ctx context.Context, id string) error
	Categories(ctx context.Context) ([]string, error)
	AdjustStock(ctx context.Context, id string, delta int32) error
}

// Service orchestrates product queries, validation, and caching.
type Service struct {
	repo         repository
	cache        *Cache
	defaultLimit int
	maxLimit     int
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo         repository
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("catalog: repository is required")
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{repo: cfg.Repo, cache: cfg.Cache, defaultLimit: defaultLimit, maxLimit: maxLimit}, nil
}

// ProductInput carries a create or update payload.
type ProductInput struct {
	SKU      string           `json:"sku" validate:"required,max=64"`
	Name     string           `json:"name" validate:"required,max=255"`
	Category string           `json:"category" validate:"max=100"`
	Price    decimal.Decimal  `json:"price"`
	Cost     *decimal.Decimal `json:"cost"`
	Stock    int32            `json:"stock"`
	IsActive *bool            `json:"is_active"`
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query    string
	Category string
	Active   *bool
	Page     int
	Limit    int
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Product
	Total int64
	Page  int
	Limit int
}

const (
	categoriesCacheKey = "catalog:categories"
	productCachePrefix = "catalog:product:"
)

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.defaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))
	params.Category = strings.TrimSpace(values.Get("category"))

	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := parsePositiveInt(v)
		if err != nil {
			return params, badRequest("page", "page must be a positive integer", err)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := parsePositiveInt(v)
		if err != nil {
			return params, badRequest("limit", "limit must be a positive integer", err)
		}
		params.Limit = limit
	}
	if params.Limit > s.maxLimit {
		params.Limit = s.maxLimit
	}

	if v := strings.TrimSpace(values.Get("is_active")); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return params, badRequest("is_active", "is_active must be true or false", err)
		}
		params.Active = &b
	}
	return params, nil
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, in ProductInput) (Product, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Product{}, err
	}
	if err := validateMoney(in); err != nil {
		return Product{}, err
	}
	product := Product{
		SKU:      strings.TrimSpace(in.SKU),
		Name:     strings.TrimSpace(in.Name),
		Category: strings.TrimSpace(in.Category),
		Price:    in.Price,
		Cost:     in.Cost,
		Stock:    in.Stock,
		IsActive: true,
	}
	if in.IsActive != nil {
		product.IsActive = *in.IsActive
	}
	if err := s.repo.Insert(ctx, &product); err != nil {
		return Product{}, s.mapRepoError(err)
	}
	s.cache.Del(ctx, categoriesCacheKey)
	return product, nil
}

// Get returns a single product by id.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	if s.cache != nil {
		var cached Product
		ok, err := s.cache.GetJSON(ctx, productCachePrefix+id, &cached)
		if err == nil && ok {
			return cached, nil
		}
	}
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Product{}, s.mapRepoError(err)
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, productCachePrefix+id, product)
	}
	return product, nil
}

// List returns filtered products with pagination metadata.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = s.defaultLimit
	}
	filter := ListFilter{
		Query:    params.Query,
		Category: params.Category,
		Active:   params.Active,
		Limit:    params.Limit,
		Offset:   (params.Page - 1) * params.Limit,
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Product{}
	}
	return ListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// Update overwrites a product and drops stale cache entries.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (Product, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Product{}, err
	}
	if err := validateMoney(in); err != nil {
		return Product{}, err
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Product{}, s.mapRepoError(err)
	}
	current.SKU = strings.TrimSpace(in.SKU)
	current.Name = strings.TrimSpace(in.Name)
	current.Category = strings.TrimSpace(in.Category)
	current.Price = in.Price
	current.Cost = in.Cost
	current.Stock = in.Stock
	if in.IsActive != nil {
		current.IsActive = *in.IsActive
	}
	if err := s.repo.Update(ctx, &current); err != nil {
		return Product{}, s.mapRepoError(err)
	}
	s.cache.Del(ctx, productCachePrefix+id, categoriesCacheKey)
	return current, nil
}

// Delete deactivates a product. Historical transactions keep referencing it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return s.mapRepoError(err)
	}
	s.cache.Del(ctx, productCachePrefix+id, categoriesCacheKey)
	return nil
}

// Categories returns the distinct product categories.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	if s.cache != nil {
		var cached []string
		ok, err := s.cache.GetJSON(ctx, categoriesCacheKey, &cached)
		if err == nil && ok {
			return cached, nil
		}
	}
	categories, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []string{}
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, categoriesCacheKey, categories)
	}
	return categories, nil
}

// AdjustStock applies a signed stock delta to a product.
func (s *Service) AdjustStock(ctx context.Context, id string, delta int32) (Product, error) {
	if err := s.repo.AdjustStock(ctx, id, delta); err != nil {
		return Product{}, s.mapRepoError(err)
	}
	s.cache.Del(ctx, productCachePrefix+id)
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Product{}, s.mapRepoError(err)
	}
	return product, nil
}

func (s *Service) mapRepoError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("product", err)
	case errors.Is(err, ErrDuplicateSKU):
		return common.Conflict("CONFLICT", "sku already exists", err)
	case errors.Is(err, ErrInsufficientStock):
		return common.Conflict("INSUFFICIENT_STOCK", "insufficient stock", err)
	default:
		return err
	}
}

func validateMoney(in ProductInput) error {
	if !in.Price.IsPositive() {
		return badRequest("price", "price must be greater than zero", nil)
	}
	if in.Cost != nil && in.Cost.IsNegative() {
		return badRequest("cost", "cost must not be negative", nil)
	}
	if in.Stock < 0 {
		return badRequest("stock", "stock must not be negative", nil)
	}
	return nil
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("value %d is not positive", n)
	}
	return n, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y":
		return true, nil
	case "false", "0", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean: %s", value)
	}
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details: map[string]any{
			"field": field,
		},
	}
}
