package transaction_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/customer"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/engine"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/transaction"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type fakeProducts struct {
	products map[string]catalog.Product
}

func (f *fakeProducts) Get(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, &common.AppError{Code: "NOT_FOUND", Message: "product not found", HTTPStatus: 404}
	}
	return p, nil
}

type fakeCustomers struct {
	customers map[string]customer.Customer
	settled   []settlement
}

type settlement struct {
	customerID       string
	earned, redeemed int64
	spent            decimal.Decimal
}

func (f *fakeCustomers) Get(_ context.Context, id string) (customer.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return customer.Customer{}, &common.AppError{Code: "NOT_FOUND", Message: "customer not found", HTTPStatus: 404}
	}
	return c, nil
}

func (f *fakeCustomers) ApplyPointsDelta(_ context.Context, id string, earned, redeemed int64, spent decimal.Decimal) (customer.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return customer.Customer{}, &common.AppError{Code: "NOT_FOUND", Message: "customer not found", HTTPStatus: 404}
	}
	c.Points += earned - redeemed
	f.customers[id] = c
	f.settled = append(f.settled, settlement{customerID: id, earned: earned, redeemed: redeemed, spent: spent})
	return c, nil
}

type fakeDiscounts struct {
	byCode map[string]engine.DiscountSpec
	used   []string
}

func (f *fakeDiscounts) Resolve(_ context.Context, code string, _ decimal.Decimal) (discount.Discount, engine.DiscountSpec, error) {
	spec, ok := f.byCode[code]
	if !ok {
		return discount.Discount{}, engine.DiscountSpec{}, &common.AppError{Code: "NOT_FOUND", Message: "discount not found", HTTPStatus: 404}
	}
	return discount.Discount{ID: "d-" + code, Code: code, Kind: spec.Kind, Value: spec.Value}, spec, nil
}

func (f *fakeDiscounts) MarkUsed(_ context.Context, id string) error {
	f.used = append(f.used, id)
	return nil
}

type fakeRepo struct {
	transactions map[string]transaction.Transaction
	items        map[string][]transaction.Item
	stockFail    bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		transactions: map[string]transaction.Transaction{},
		items:        map[string][]transaction.Item{},
	}
}

func (f *fakeRepo) Create(_ context.Context, t *transaction.Transaction, items []transaction.Item) error {
	if f.stockFail {
		return transaction.ErrStockConflict
	}
	t.ID = uuid.NewString()
	t.CreatedAt = time.Now()
	f.transactions[t.ID] = *t
	f.items[t.ID] = items
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (transaction.Transaction, []transaction.Item, error) {
	t, ok := f.transactions[id]
	if !ok {
		return transaction.Transaction{}, nil, transaction.ErrNotFound
	}
	return t, f.items[id], nil
}

func (f *fakeRepo) List(_ context.Context, filter transaction.ListFilter) ([]transaction.Transaction, int64, error) {
	var all []transaction.Transaction
	for _, t := range f.transactions {
		if filter.Status != "" && t.PaymentStatus != filter.Status {
			continue
		}
		all = append(all, t)
	}
	return all, int64(len(all)), nil
}

func (f *fakeRepo) SetPaymentStatus(_ context.Context, id string, status transaction.PaymentStatus) error {
	t, ok := f.transactions[id]
	if !ok {
		return transaction.ErrNotFound
	}
	t.PaymentStatus = status
	f.transactions[id] = t
	return nil
}

func (f *fakeRepo) ExportRows(_ context.Context, from, to time.Time) ([]transaction.CoretaxRow, error) {
	var rows []transaction.CoretaxRow
	for _, t := range f.transactions {
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		rows = append(rows, transaction.CoretaxRow{
			TanggalFaktur:    t.CreatedAt.Format("2006-01-02"),
			NomorFaktur:      t.InvoiceNumber,
			DPP:              t.DPP,
			PPN:              t.TaxAmount,
			TarifPPN:         t.TaxRate,
			StatusPembayaran: string(t.PaymentStatus),
		})
	}
	return rows, nil
}

type fixture struct {
	svc       *transaction.Service
	carts     *cart.Service
	repo      *fakeRepo
	customers *fakeCustomers
	discounts *fakeDiscounts
	redis     *redis.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	products := &fakeProducts{products: map[string]catalog.Product{
		"p1": {ID: "p1", SKU: "KOPI-001", Name: "Kopi Susu", Price: dec("20000"), Cost: decPtr("6000"), Stock: 10, IsActive: true},
	}}
	customers := &fakeCustomers{customers: map[string]customer.Customer{
		"c1": {ID: "c1", Name: "Budi", MemberType: engine.TierGold, Points: 500},
	}}
	discounts := &fakeDiscounts{byCode: map[string]engine.DiscountSpec{
		"POTONG10K": {Kind: engine.DiscountFixed, Value: dec("10000")},
	}}

	carts, err := cart.NewService(cart.ServiceConfig{
		Store:     cart.NewStore(client, time.Hour),
		Engine:    engine.New(engine.DefaultConfig()),
		Products:  products,
		Customers: customers,
		Discounts: discounts,
	})
	require.NoError(t, err)

	repo := newFakeRepo()
	svc, err := transaction.NewService(transaction.ServiceConfig{
		Repo:      repo,
		Carts:     carts,
		Discounts: discounts,
		Customers: customers,
		Locks:     &lock.Guard{R: client, TTL: time.Second},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, carts: carts, repo: repo, customers: customers, discounts: discounts, redis: client}
}

func (f *fixture) preparedCart(t *testing.T) cart.Cart {
	t.Helper()
	ctx := context.Background()
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	c, err = f.carts.AddItem(ctx, c.ID, "p1", 5)
	require.NoError(t, err)
	c, err = f.carts.AttachCustomer(ctx, c.ID, "c1")
	require.NoError(t, err)
	c, err = f.carts.ApplyDiscount(ctx, c.ID, "POTONG10K")
	require.NoError(t, err)
	c, err = f.carts.ApplyLoyalty(ctx, c.ID, 500)
	require.NoError(t, err)
	return c
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}

func TestFinalizeCash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.preparedCart(t)

	result, err := f.svc.Finalize(ctx, transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CASH",
		AmountPaid:  dec("50000"),
	})
	require.NoError(t, err)

	tx := result.Transaction
	require.Regexp(t, `^INV-\d{14}-[0-9A-F]{4}$`, tx.InvoiceNumber)
	require.Equal(t, transaction.StatusPaid, tx.PaymentStatus)
	require.True(t, tx.GrandTotal.Equal(dec("44400")))
	require.True(t, tx.Change.Equal(dec("5600")))
	require.True(t, tx.DPP.Equal(dec("40000")))
	require.True(t, tx.TaxAmount.Equal(dec("4400")))
	require.EqualValues(t, 6, tx.PointsEarned)
	require.EqualValues(t, 500, tx.PointsRedeemed)
	require.Len(t, result.Items, 1)

	// Discount usage burned and points settled.
	require.Equal(t, []string{"d-POTONG10K"}, f.discounts.used)
	require.Len(t, f.customers.settled, 1)
	require.EqualValues(t, 6, f.customers.settled[0].earned)
	require.EqualValues(t, 500, f.customers.settled[0].redeemed)
	require.True(t, f.customers.settled[0].spent.Equal(dec("44400")))

	// Cart is gone; a replay has nothing to finalize.
	_, err = f.svc.Finalize(ctx, transaction.FinalizeInput{
		CartID: c.ID, PaymentType: "CASH", AmountPaid: dec("50000"),
	})
	requireCode(t, err, "NOT_FOUND")
}

func TestFinalizeInsufficientPayment(t *testing.T) {
	f := newFixture(t)
	c := f.preparedCart(t)

	_, err := f.svc.Finalize(context.Background(), transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CASH",
		AmountPaid:  dec("44399"),
	})
	requireCode(t, err, "INSUFFICIENT_PAYMENT")

	// Cart survives the rejection.
	_, err = f.carts.Get(context.Background(), c.ID)
	require.NoError(t, err)
}

func TestFinalizeNonCashIsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.preparedCart(t)

	result, err := f.svc.Finalize(ctx, transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "QRIS",
	})
	require.NoError(t, err)
	require.Equal(t, transaction.StatusPending, result.Transaction.PaymentStatus)
	require.True(t, result.Transaction.AmountPaid.Equal(dec("44400")))
	require.True(t, result.Transaction.Change.IsZero())

	paid, err := f.svc.MarkPaid(ctx, result.Transaction.ID)
	require.NoError(t, err)
	require.Equal(t, transaction.StatusPaid, paid.Transaction.PaymentStatus)

	_, err = f.svc.MarkPaid(ctx, result.Transaction.ID)
	requireCode(t, err, "CONFLICT")
}

func TestFinalizeRejectsUnknownPaymentType(t *testing.T) {
	f := newFixture(t)
	c := f.preparedCart(t)

	_, err := f.svc.Finalize(context.Background(), transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CEK",
	})
	requireCode(t, err, "BAD_REQUEST")
}

func TestFinalizeEmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CASH",
		AmountPaid:  dec("10000"),
	})
	requireCode(t, err, "CART_EMPTY")
}

func TestFinalizeStockConflict(t *testing.T) {
	f := newFixture(t)
	c := f.preparedCart(t)
	f.repo.stockFail = true

	_, err := f.svc.Finalize(context.Background(), transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CASH",
		AmountPaid:  dec("50000"),
	})
	requireCode(t, err, "INSUFFICIENT_STOCK")

	// Nothing settled when persistence fails.
	require.Empty(t, f.discounts.used)
	require.Empty(t, f.customers.settled)
}

func TestExportCoretax(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.preparedCart(t)

	result, err := f.svc.Finalize(ctx, transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CASH",
		AmountPaid:  dec("50000"),
	})
	require.NoError(t, err)

	now := time.Now()
	rows, err := f.svc.ExportCoretax(ctx, now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, result.Transaction.InvoiceNumber, rows[0].NomorFaktur)
	require.True(t, rows[0].DPP.Equal(dec("40000")))
	require.True(t, rows[0].PPN.Equal(dec("4400")))
	require.Equal(t, "PAID", rows[0].StatusPembayaran)

	_, err = f.svc.ExportCoretax(ctx, now, now)
	requireCode(t, err, "BAD_REQUEST")
}

func TestFinalizeWhileCheckoutInProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.preparedCart(t)

	held, err := f.redis.SetNX(ctx, "lock:finalize:"+c.ID, "other-terminal", time.Minute).Result()
	require.NoError(t, err)
	require.True(t, held)

	_, err = f.svc.Finalize(ctx, transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CASH",
		AmountPaid:  dec("50000"),
	})
	requireCode(t, err, "CONFLICT")

	require.NoError(t, f.redis.Del(ctx, "lock:finalize:"+c.ID).Err())
	_, err = f.svc.Finalize(ctx, transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CASH",
		AmountPaid:  dec("50000"),
	})
	require.NoError(t, err)
}

func TestInvoiceNumberFormat(t *testing.T) {
	f := newFixture(t)
	frozen := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)
	svc, err := transaction.NewService(transaction.ServiceConfig{
		Repo:      f.repo,
		Carts:     f.carts,
		Discounts: f.discounts,
		Customers: f.customers,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return frozen },
	})
	require.NoError(t, err)

	c := f.preparedCart(t)
	result, err := svc.Finalize(context.Background(), transaction.FinalizeInput{
		CartID:      c.ID,
		PaymentType: "CASH",
		AmountPaid:  dec("50000"),
	})
	require.NoError(t, err)
	require.Regexp(t, `^INV-20260830140509-[0-9A-F]{4}$`, result.Transaction.InvoiceNumber)
}
