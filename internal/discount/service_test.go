package discount_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/engine"
)

type fakeRepo struct {
	discounts map[string]discount.Discount
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{discounts: map[string]discount.Discount{}}
}

func (f *fakeRepo) Insert(_ context.Context, d *discount.Discount) error {
	for _, existing := range f.discounts {
		if existing.Code == d.Code {
			return discount.ErrDuplicateCode
		}
	}
	d.ID = uuid.NewString()
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	f.discounts[d.ID] = *d
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (discount.Discount, error) {
	d, ok := f.discounts[id]
	if !ok {
		return discount.Discount{}, discount.ErrNotFound
	}
	return d, nil
}

func (f *fakeRepo) GetByCode(_ context.Context, code string) (discount.Discount, error) {
	for _, d := range f.discounts {
		if d.Code == code {
			return d, nil
		}
	}
	return discount.Discount{}, discount.ErrNotFound
}

func (f *fakeRepo) List(_ context.Context, activeOnly bool, limit, offset int) ([]discount.Discount, int64, error) {
	var all []discount.Discount
	for _, d := range f.discounts {
		if activeOnly && !d.IsActive {
			continue
		}
		all = append(all, d)
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeRepo) Update(_ context.Context, d *discount.Discount) error {
	if _, ok := f.discounts[d.ID]; !ok {
		return discount.ErrNotFound
	}
	f.discounts[d.ID] = *d
	return nil
}

func (f *fakeRepo) Deactivate(_ context.Context, id string) error {
	d, ok := f.discounts[id]
	if !ok {
		return discount.ErrNotFound
	}
	d.IsActive = false
	f.discounts[id] = d
	return nil
}

func (f *fakeRepo) IncrementUsage(_ context.Context, id string) error {
	d, ok := f.discounts[id]
	if !ok {
		return discount.ErrNotFound
	}
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return discount.ErrExhausted
	}
	d.UsageCount++
	f.discounts[id] = d
	return nil
}

var frozenNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*discount.Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	svc, err := discount.NewService(discount.ServiceConfig{
		Repo: repo,
		Now:  func() time.Time { return frozenNow },
	})
	require.NoError(t, err)
	return svc, repo
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), discount.Input{
		Code: "HEMAT10", Name: "Hemat", Type: "GRATIS", Value: dec("10"),
	})
	requireCode(t, err, "BAD_REQUEST")

	_, err = svc.Create(context.Background(), discount.Input{
		Code: "HEMAT10", Name: "Hemat", Type: "PERCENTAGE", Value: dec("150"),
	})
	requireCode(t, err, "BAD_REQUEST")

	created, err := svc.Create(context.Background(), discount.Input{
		Code: "hemat10", Name: "Hemat 10%", Type: "percentage", Value: dec("10"),
	})
	require.NoError(t, err)
	require.Equal(t, "HEMAT10", created.Code)
	require.Equal(t, engine.DiscountPercentage, created.Kind)
	require.True(t, created.IsActive)

	_, err = svc.Create(context.Background(), discount.Input{
		Code: "HEMAT10", Name: "Duplikat", Type: "FIXED", Value: dec("5000"),
	})
	requireCode(t, err, "CONFLICT")
}

func TestResolveHappyPath(t *testing.T) {
	svc, _ := newTestService(t)

	maxDiscount := dec("20000")
	created, err := svc.Create(context.Background(), discount.Input{
		Code: "HEMAT10", Name: "Hemat 10%", Type: "PERCENTAGE", Value: dec("10"),
		MinPurchase: dec("50000"), MaxDiscount: &maxDiscount,
	})
	require.NoError(t, err)

	d, spec, err := svc.Resolve(context.Background(), " hemat10 ", dec("100000"))
	require.NoError(t, err)
	require.Equal(t, created.ID, d.ID)
	require.Equal(t, engine.DiscountPercentage, spec.Kind)
	require.True(t, spec.Value.Equal(dec("10")))
	require.NotNil(t, spec.MaxDiscount)
	require.True(t, spec.MaxDiscount.Equal(maxDiscount))
}

func TestResolveRejections(t *testing.T) {
	svc, repo := newTestService(t)

	_, _, err := svc.Resolve(context.Background(), "TIDAKADA", dec("100000"))
	requireCode(t, err, "NOT_FOUND")

	inactive := false
	created, err := svc.Create(context.Background(), discount.Input{
		Code: "MATI", Name: "Nonaktif", Type: "FIXED", Value: dec("5000"), IsActive: &inactive,
	})
	require.NoError(t, err)
	_, _, err = svc.Resolve(context.Background(), "MATI", dec("100000"))
	requireCode(t, err, "DISCOUNT_INACTIVE")
	_ = created

	future := frozenNow.Add(24 * time.Hour)
	_, err = svc.Create(context.Background(), discount.Input{
		Code: "BESOK", Name: "Mulai besok", Type: "FIXED", Value: dec("5000"), ValidFrom: &future,
	})
	require.NoError(t, err)
	_, _, err = svc.Resolve(context.Background(), "BESOK", dec("100000"))
	requireCode(t, err, "DISCOUNT_NOT_STARTED")

	past := frozenNow.Add(-24 * time.Hour)
	_, err = svc.Create(context.Background(), discount.Input{
		Code: "KEMARIN", Name: "Sudah lewat", Type: "FIXED", Value: dec("5000"), ValidUntil: &past,
	})
	require.NoError(t, err)
	_, _, err = svc.Resolve(context.Background(), "KEMARIN", dec("100000"))
	requireCode(t, err, "DISCOUNT_EXPIRED")

	limit := int32(1)
	exhausted, err := svc.Create(context.Background(), discount.Input{
		Code: "SEKALI", Name: "Sekali pakai", Type: "FIXED", Value: dec("5000"), UsageLimit: &limit,
	})
	require.NoError(t, err)
	require.NoError(t, svc.MarkUsed(context.Background(), exhausted.ID))
	_, _, err = svc.Resolve(context.Background(), "SEKALI", dec("100000"))
	requireCode(t, err, "DISCOUNT_EXHAUSTED")
	err = svc.MarkUsed(context.Background(), exhausted.ID)
	requireCode(t, err, "DISCOUNT_EXHAUSTED")
	require.EqualValues(t, 1, repo.discounts[exhausted.ID].UsageCount)

	_, err = svc.Create(context.Background(), discount.Input{
		Code: "MINIMAL", Name: "Minimal belanja", Type: "FIXED", Value: dec("5000"), MinPurchase: dec("200000"),
	})
	require.NoError(t, err)
	_, _, err = svc.Resolve(context.Background(), "MINIMAL", dec("100000"))
	requireCode(t, err, "DISCOUNT_MIN_PURCHASE")
}

func TestResolveBoundaryAtMinPurchase(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), discount.Input{
		Code: "PAS", Name: "Pas minimal", Type: "FIXED", Value: dec("5000"), MinPurchase: dec("100000"),
	})
	require.NoError(t, err)

	_, _, err = svc.Resolve(context.Background(), "PAS", dec("100000"))
	require.NoError(t, err)
}
