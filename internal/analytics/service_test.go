package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/analytics"
	"github.com/noah-isme/backend-kasir/internal/common"
)

type fakeRepo struct {
	dailyCalls int
	topCalls   int
}

func (f *fakeRepo) DailySales(_ context.Context, from, to time.Time) ([]analytics.DailySalesRow, error) {
	f.dailyCalls++
	return []analytics.DailySalesRow{{
		Day:              from.Format("2006-01-02"),
		TransactionCount: 3,
		GrossSales:       decimal.NewFromInt(300000),
		TotalDiscount:    decimal.NewFromInt(30000),
		TaxAmount:        decimal.NewFromInt(29700),
		GrandTotal:       decimal.NewFromInt(299700),
	}}, nil
}

func (f *fakeRepo) TopProducts(_ context.Context, _, _ time.Time, limit int32) ([]analytics.TopProductRow, error) {
	f.topCalls++
	rows := make([]analytics.TopProductRow, 0, limit)
	rows = append(rows, analytics.TopProductRow{
		ProductID: "p1", SKU: "KOPI-001", Name: "Kopi Susu",
		QtySold: 42, Revenue: decimal.NewFromInt(840000),
	})
	return rows, nil
}

func newService(t *testing.T, repo *fakeRepo) *analytics.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc, err := analytics.NewService(analytics.ServiceConfig{Repo: repo, Cache: client, TTL: time.Minute})
	require.NoError(t, err)
	return svc
}

func TestDailySalesCachesResult(t *testing.T) {
	repo := &fakeRepo{}
	svc := newService(t, repo)
	ctx := context.Background()
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	rows, err := svc.DailySales(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].GrandTotal.Equal(decimal.NewFromInt(299700)))

	_, err = svc.DailySales(ctx, from, to)
	require.NoError(t, err)
	require.Equal(t, 1, repo.dailyCalls)

	// a different range misses the cache
	_, err = svc.DailySales(ctx, from, to.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 2, repo.dailyCalls)
}

func TestDailySalesRejectsInvertedRange(t *testing.T) {
	svc := newService(t, &fakeRepo{})
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.DailySales(context.Background(), from, from)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestTopProductsClampsLimit(t *testing.T) {
	repo := &fakeRepo{}
	svc := newService(t, repo)
	ctx := context.Background()
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	rows, err := svc.TopProducts(ctx, from, to, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(42), rows[0].QtySold)

	// cached under the defaulted limit
	_, err = svc.TopProducts(ctx, from, to, 10)
	require.NoError(t, err)
	require.Equal(t, 1, repo.topCalls)
}

func TestServiceWorksWithoutCache(t *testing.T) {
	repo := &fakeRepo{}
	svc, err := analytics.NewService(analytics.ServiceConfig{Repo: repo})
	require.NoError(t, err)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err = svc.DailySales(context.Background(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	_, err = svc.DailySales(context.Background(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 2, repo.dailyCalls)
}
