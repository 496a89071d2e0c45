package customer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/engine"
)

type repository interface {
	Insert(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, id string) (Customer, error)
	GetByPhone(ctx context.Context, phone string) (Customer, error)
	GetByMemberCode(ctx context.Context, code string) (Customer, error)
	List(ctx context.Context, search string, limit, offset int) ([]Customer, int64, error)
	Update(ctx context.Context, c *Customer) error
	ApplyPointsDelta(ctx context.Context, id string, earned, redeemed int64, spent decimal.Decimal) (Customer, error)
}

// Service manages loyalty members and their point balances.
type Service struct {
	repo repository
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo repository
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("customer: repository is required")
	}
	return &Service{repo: cfg.Repo}, nil
}

// CreateInput carries a member registration payload.
type CreateInput struct {
	Name       string `json:"name" validate:"required,max=255"`
	Phone      string `json:"phone" validate:"required,max=32"`
	Email      string `json:"email" validate:"omitempty,email"`
	MemberType string `json:"member_type"`
}

// UpdateInput carries a member profile update payload.
type UpdateInput struct {
	Name       string `json:"name" validate:"required,max=255"`
	Phone      string `json:"phone" validate:"required,max=32"`
	Email      string `json:"email" validate:"omitempty,email"`
	MemberType string `json:"member_type" validate:"required"`
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Customer
	Total int64
	Page  int
	Limit int
}

// Create registers a new member with a generated member code.
func (s *Service) Create(ctx context.Context, in CreateInput) (Customer, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Customer{}, err
	}
	tier := engine.TierRegular
	if in.MemberType != "" {
		tier = engine.MemberTier(strings.ToUpper(strings.TrimSpace(in.MemberType)))
		if !tier.Valid() {
			return Customer{}, badTier(in.MemberType)
		}
	}
	customer := Customer{
		MemberCode: generateMemberCode(),
		Name:       strings.TrimSpace(in.Name),
		Phone:      strings.TrimSpace(in.Phone),
		Email:      strings.TrimSpace(in.Email),
		MemberType: tier,
	}
	if err := s.repo.Insert(ctx, &customer); err != nil {
		return Customer{}, s.mapRepoError(err)
	}
	return customer, nil
}

// Get returns a member by id.
func (s *Service) Get(ctx context.Context, id string) (Customer, error) {
	customer, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Customer{}, s.mapRepoError(err)
	}
	return customer, nil
}

// Lookup resolves a member by phone number or member code.
func (s *Service) Lookup(ctx context.Context, key string) (Customer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Customer{}, &common.AppError{
			Code: "BAD_REQUEST", Message: "lookup key is required", HTTPStatus: http.StatusBadRequest,
		}
	}
	if strings.HasPrefix(strings.ToUpper(key), "M") && len(key) == 9 {
		if customer, err := s.repo.GetByMemberCode(ctx, strings.ToUpper(key)); err == nil {
			return customer, nil
		}
	}
	customer, err := s.repo.GetByPhone(ctx, key)
	if err != nil {
		return Customer{}, s.mapRepoError(err)
	}
	return customer, nil
}

// List returns members matching the search term.
func (s *Service) List(ctx context.Context, search string, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	items, total, err := s.repo.List(ctx, search, limit, (page-1)*limit)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Customer{}
	}
	return ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Update overwrites a member profile, including the tier.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (Customer, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Customer{}, err
	}
	tier := engine.MemberTier(strings.ToUpper(strings.TrimSpace(in.MemberType)))
	if !tier.Valid() {
		return Customer{}, badTier(in.MemberType)
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Customer{}, s.mapRepoError(err)
	}
	current.Name = strings.TrimSpace(in.Name)
	current.Phone = strings.TrimSpace(in.Phone)
	current.Email = strings.TrimSpace(in.Email)
	current.MemberType = tier
	if err := s.repo.Update(ctx, &current); err != nil {
		return Customer{}, s.mapRepoError(err)
	}
	return current, nil
}

// ApplyPointsDelta settles point movement after a finalized sale.
func (s *Service) ApplyPointsDelta(ctx context.Context, id string, earned, redeemed int64, spent decimal.Decimal) (Customer, error) {
	if earned < 0 || redeemed < 0 {
		return Customer{}, &common.AppError{
			Code: "BAD_REQUEST", Message: "point deltas must not be negative", HTTPStatus: http.StatusBadRequest,
		}
	}
	customer, err := s.repo.ApplyPointsDelta(ctx, id, earned, redeemed, spent)
	if err != nil {
		return Customer{}, s.mapRepoError(err)
	}
	return customer, nil
}

func (s *Service) mapRepoError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound("customer", err)
	case errors.Is(err, ErrDuplicatePhone):
		return common.Conflict("CONFLICT", "phone already registered", err)
	case errors.Is(err, ErrInsufficientPoints):
		return common.Conflict("INSUFFICIENT_POINTS", "insufficient points", err)
	default:
		return err
	}
}

func badTier(value string) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    fmt.Sprintf("unknown member type %q", value),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": "member_type"},
	}
}

func generateMemberCode() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "M" + strings.ToUpper(hex.EncodeToString(buf))
}
