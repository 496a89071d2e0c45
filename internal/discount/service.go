package discount

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/engine"
)

type repository interface {
	Insert(ctx context.Context, d *Discount) error
	GetByID(ctx context.Context, id string) (Discount, error)
	GetByCode(ctx context.Context, code string) (Discount, error)
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]Discount, int64, error)
	Update(ctx context.Context, d *Discount) error
	Deactivate(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, id string) error
}

// Service manages promotion codes and resolves them for checkout.
type Service struct {
	repo repository
	now  func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo repository
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("discount: repository is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: cfg.Repo, now: now}, nil
}

// Input carries a create or update payload.
type Input struct {
	Code        string           `json:"code" validate:"required,max=64"`
	Name        string           `json:"name" validate:"required,max=255"`
	Type        string           `json:"type" validate:"required"`
	Value       decimal.Decimal  `json:"value"`
	MinPurchase decimal.Decimal  `json:"min_purchase"`
	MaxDiscount *decimal.Decimal `json:"max_discount"`
	UsageLimit  *int32           `json:"usage_limit"`
	ValidFrom   *time.Time       `json:"valid_from"`
	ValidUntil  *time.Time       `json:"valid_until"`
	IsActive    *bool            `json:"is_active"`
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Discount
	Total int64
	Page  int
	Limit int
}

// Create validates and stores a new discount.
func (s *Service) Create(ctx context.Context, in Input) (Discount, error) {
	d, err := s.fromInput(in)
	if err != nil {
		return Discount{}, err
	}
	if err := s.repo.Insert(ctx, &d); err != nil {
		return Discount{}, s.mapRepoError(err)
	}
	return d, nil
}

// Get returns a discount by id.
func (s *Service) Get(ctx context.Context, id string) (Discount, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Discount{}, s.mapRepoError(err)
	}
	return d, nil
}

// List returns discounts with pagination metadata.
func (s *Service) List(ctx context.Context, activeOnly bool, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	items, total, err := s.repo.List(ctx, activeOnly, limit, (page-1)*limit)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Discount{}
	}
	return ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Update overwrites a discount.
func (s *Service) Update(ctx context.Context, id string, in Input) (Discount, error) {
	d, err := s.fromInput(in)
	if err != nil {
		return Discount{}, err
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Discount{}, s.mapRepoError(err)
	}
	d.ID = current.ID
	d.UsageCount = current.UsageCount
	d.CreatedAt = current.CreatedAt
	if err := s.repo.Update(ctx, &d); err != nil {
		return Discount{}, s.mapRepoError(err)
	}
	return d, nil
}

// Delete deactivates a discount.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return s.mapRepoError(err)
	}
	return nil
}

// Resolve checks whether a code is redeemable against the given subtotal and
// returns the discount together with its engine spec. Every rejection carries
// a distinct code so the cashier screen can explain the refusal.
func (s *Service) Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (Discount, engine.DiscountSpec, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Discount{}, engine.DiscountSpec{}, &common.AppError{
			Code: "BAD_REQUEST", Message: "discount code is required", HTTPStatus: http.StatusBadRequest,
		}
	}
	d, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return Discount{}, engine.DiscountSpec{}, s.mapRepoError(err)
	}
	if !d.IsActive {
		return Discount{}, engine.DiscountSpec{}, rejection("DISCOUNT_INACTIVE", "discount is not active")
	}
	now := s.now()
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return Discount{}, engine.DiscountSpec{}, rejection("DISCOUNT_NOT_STARTED", "discount is not valid yet")
	}
	if d.ValidUntil != nil && now.After(*d.ValidUntil) {
		return Discount{}, engine.DiscountSpec{}, rejection("DISCOUNT_EXPIRED", "discount has expired")
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return Discount{}, engine.DiscountSpec{}, rejection("DISCOUNT_EXHAUSTED", "discount usage limit reached")
	}
	if subtotal.LessThan(d.MinPurchase) {
		return Discount{}, engine.DiscountSpec{}, &common.AppError{
			Code:       "DISCOUNT_MIN_PURCHASE",
			Message:    "subtotal below minimum purchase",
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"min_purchase": d.MinPurchase.String()},
		}
	}
	return d, engine.DiscountSpec{Kind: d.Kind, Value: d.Value, MaxDiscount: d.MaxDiscount}, nil
}

// MarkUsed records a redemption after a finalized sale.
func (s *Service) MarkUsed(ctx context.Context, id string) error {
	if err := s.repo.IncrementUsage(ctx, id); err != nil {
		return s.mapRepoError(err)
	}
	return nil
}

func (s *Service) fromInput(in Input) (Discount, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Discount{}, err
	}
	kind := engine.DiscountKind(strings.ToUpper(strings.TrimSpace(in.Type)))
	if kind != engine.DiscountPercentage && kind != engine.DiscountFixed {
		return Discount{}, badRequest("type", "type must be PERCENTAGE or FIXED")
	}
	if !in.Value.IsPositive() {
		return Discount{}, badRequest("value", "value must be greater than zero")
	}
	if kind == engine.DiscountPercentage && in.Value.GreaterThan(decimal.NewFromInt(100)) {
		return Discount{}, badRequest("value", "percentage value must not exceed 100")
	}
	if in.MinPurchase.IsNegative() {
		return Discount{}, badRequest("min_purchase", "min_purchase must not be negative")
	}
	if in.MaxDiscount != nil && !in.MaxDiscount.IsPositive() {
		return Discount{}, badRequest("max_discount", "max_discount must be greater than zero")
	}
	if in.UsageLimit != nil && *in.UsageLimit < 1 {
		return Discount{}, badRequest("usage_limit", "usage_limit must be at least 1")
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.ValidFrom) {
		return Discount{}, badRequest("valid_until", "valid_until must be after valid_from")
	}
	d := Discount{
		Code:        strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:        strings.TrimSpace(in.Name),
		Kind:        kind,
		Value:       in.Value,
		MinPurchase: in.MinPurchase,
		MaxDiscount: in.MaxDiscount,
		UsageLimit:  in.UsageLimit,
		ValidFrom:   in.ValidFrom,
		ValidUntil:  in.ValidUntil,
		IsActive:    true,
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	return d, nil
}

func (s *Service) mapRepoError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("discount", err)
	case errors.Is(err, ErrDuplicateCode):
		return common.Conflict("CONFLICT", "discount code already exists", err)
	case errors.Is(err, ErrExhausted):
		return rejection("DISCOUNT_EXHAUSTED", "discount usage limit reached")
	default:
		return err
	}
}

func rejection(code, message string) *common.AppError {
	return common.Rejection(code, message, nil)
}

func badRequest(field, message string) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}
