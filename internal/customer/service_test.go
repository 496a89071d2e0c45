package customer_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/customer"
	"github.com/noah-isme/backend-kasir/internal/engine"
)

type fakeRepo struct {
	customers map[string]customer.Customer
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{customers: map[string]customer.Customer{}}
}

func (f *fakeRepo) Insert(_ context.Context, c *customer.Customer) error {
	for _, existing := range f.customers {
		if existing.Phone == c.Phone {
			return customer.ErrDuplicatePhone
		}
	}
	c.ID = uuid.NewString()
	c.LifetimeSpent = decimal.Zero
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.customers[c.ID] = *c
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (customer.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) GetByPhone(_ context.Context, phone string) (customer.Customer, error) {
	for _, c := range f.customers {
		if c.Phone == phone {
			return c, nil
		}
	}
	return customer.Customer{}, customer.ErrNotFound
}

func (f *fakeRepo) GetByMemberCode(_ context.Context, code string) (customer.Customer, error) {
	for _, c := range f.customers {
		if c.MemberCode == code {
			return c, nil
		}
	}
	return customer.Customer{}, customer.ErrNotFound
}

func (f *fakeRepo) List(_ context.Context, _ string, limit, offset int) ([]customer.Customer, int64, error) {
	var all []customer.Customer
	for _, c := range f.customers {
		all = append(all, c)
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

func (f *fakeRepo) Update(_ context.Context, c *customer.Customer) error {
	if _, ok := f.customers[c.ID]; !ok {
		return customer.ErrNotFound
	}
	f.customers[c.ID] = *c
	return nil
}

func (f *fakeRepo) ApplyPointsDelta(_ context.Context, id string, earned, redeemed int64, spent decimal.Decimal) (customer.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	if c.Points+earned-redeemed < 0 {
		return customer.Customer{}, customer.ErrInsufficientPoints
	}
	c.Points += earned - redeemed
	c.LifetimePoints += earned
	c.LifetimeSpent = c.LifetimeSpent.Add(spent)
	f.customers[id] = c
	return c, nil
}

func newTestService(t *testing.T) (*customer.Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	svc, err := customer.NewService(customer.ServiceConfig{Repo: repo})
	require.NoError(t, err)
	return svc, repo
}

func TestCreateGeneratesMemberCode(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(context.Background(), customer.CreateInput{
		Name:  "Budi Santoso",
		Phone: "081234567890",
	})
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^M[0-9A-F]{8}$`), created.MemberCode)
	require.Equal(t, engine.TierRegular, created.MemberType)
	require.Zero(t, created.Points)
}

func TestCreateRejectsUnknownTier(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), customer.CreateInput{
		Name:       "Budi",
		Phone:      "0812",
		MemberType: "DIAMOND",
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestCreateDuplicatePhone(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), customer.CreateInput{Name: "A", Phone: "0811"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), customer.CreateInput{Name: "B", Phone: "0811"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "CONFLICT", appErr.Code)
}

func TestLookupByPhoneAndMemberCode(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(context.Background(), customer.CreateInput{Name: "Siti", Phone: "08999"})
	require.NoError(t, err)

	byPhone, err := svc.Lookup(context.Background(), "08999")
	require.NoError(t, err)
	require.Equal(t, created.ID, byPhone.ID)

	byCode, err := svc.Lookup(context.Background(), created.MemberCode)
	require.NoError(t, err)
	require.Equal(t, created.ID, byCode.ID)

	_, err = svc.Lookup(context.Background(), "00000")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestApplyPointsDelta(t *testing.T) {
	svc, repo := newTestService(t)

	created, err := svc.Create(context.Background(), customer.CreateInput{Name: "Gold", Phone: "0877", MemberType: "gold"})
	require.NoError(t, err)
	require.Equal(t, engine.TierGold, created.MemberType)

	updated, err := svc.ApplyPointsDelta(context.Background(), created.ID, 6, 0, decimal.NewFromInt(44400))
	require.NoError(t, err)
	require.EqualValues(t, 6, updated.Points)
	require.EqualValues(t, 6, updated.LifetimePoints)
	require.True(t, updated.LifetimeSpent.Equal(decimal.NewFromInt(44400)))

	updated, err = svc.ApplyPointsDelta(context.Background(), created.ID, 0, 4, decimal.Zero)
	require.NoError(t, err)
	require.EqualValues(t, 2, updated.Points)
	require.EqualValues(t, 6, updated.LifetimePoints)

	_, err = svc.ApplyPointsDelta(context.Background(), created.ID, 0, 10, decimal.Zero)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "INSUFFICIENT_POINTS", appErr.Code)
	require.EqualValues(t, 2, repo.customers[created.ID].Points)
}

func TestUpdateTier(t *testing.T) {
	svc, _ := newTestService(t)

	created, err := svc.Create(context.Background(), customer.CreateInput{Name: "Ani", Phone: "0822"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), created.ID, customer.UpdateInput{
		Name:       "Ani",
		Phone:      "0822",
		MemberType: "PLATINUM",
	})
	require.NoError(t, err)
	require.Equal(t, engine.TierPlatinum, updated.MemberType)
}
