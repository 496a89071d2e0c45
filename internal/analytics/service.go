package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/common"
)

type repository interface {
	DailySales(ctx context.Context, from, to time.Time) ([]DailySalesRow, error)
	TopProducts(ctx context.Context, from, to time.Time, limit int32) ([]TopProductRow, error)
}

// Service serves sales reports with a short redis cache in front, since the
// same dashboard ranges are requested over and over.
type Service struct {
	repo  repository
	cache *redis.Client
	ttl   time.Duration
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo repository
	// Cache is optional; reports go straight to the database without it.
	Cache *redis.Client
	TTL   time.Duration
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("analytics: repository is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{repo: cfg.Repo, cache: cfg.Cache, ttl: ttl}, nil
}

// DailySales returns per-day totals for [from, to).
func (s *Service) DailySales(ctx context.Context, from, to time.Time) ([]DailySalesRow, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("analytics:daily:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	var cached []DailySalesRow
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.repo.DailySales(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []DailySalesRow{}
	}
	s.store(ctx, key, rows)
	return rows, nil
}

// TopProducts returns the best sellers by quantity for [from, to).
func (s *Service) TopProducts(ctx context.Context, from, to time.Time, limit int) ([]TopProductRow, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	key := fmt.Sprintf("analytics:top:%s:%s:%d", from.Format("2006-01-02"), to.Format("2006-01-02"), limit)
	var cached []TopProductRow
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	rows, err := s.repo.TopProducts(ctx, from, to, int32(limit))
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []TopProductRow{}
	}
	s.store(ctx, key, rows)
	return rows, nil
}

func checkRange(from, to time.Time) error {
	if !to.After(from) {
		return &common.AppError{
			Code: "BAD_REQUEST", Message: "to must be after from", HTTPStatus: http.StatusBadRequest,
		}
	}
	return nil
}

func (s *Service) fromCache(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, raw, s.ttl).Err()
}
