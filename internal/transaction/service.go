package transaction

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/customer"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/engine"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
)

type repository interface {
	Create(ctx context.Context, t *Transaction, items []Item) error
	GetByID(ctx context.Context, id string) (Transaction, []Item, error)
	List(ctx context.Context, f ListFilter) ([]Transaction, int64, error)
	SetPaymentStatus(ctx context.Context, id string, status PaymentStatus) error
	ExportRows(ctx context.Context, from, to time.Time) ([]CoretaxRow, error)
}

type cartProvider interface {
	Get(ctx context.Context, id string) (cart.Cart, error)
	BreakdownFor(ctx context.Context, c cart.Cart) (engine.Breakdown, error)
	Delete(ctx context.Context, id string) error
}

type discountMarker interface {
	Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (discount.Discount, engine.DiscountSpec, error)
	MarkUsed(ctx context.Context, id string) error
}

type pointsSettler interface {
	ApplyPointsDelta(ctx context.Context, id string, earned, redeemed int64, spent decimal.Decimal) (customer.Customer, error)
}

// Service finalizes carts into immutable transactions and serves the sales
// history and tax exports.
type Service struct {
	repo      repository
	carts     cartProvider
	discounts discountMarker
	customers pointsSettler
	locks     *lock.Guard
	logger    zerolog.Logger
	now       func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Repo      repository
	Carts     cartProvider
	Discounts discountMarker
	Customers pointsSettler
	// Locks serializes finalization per cart when set.
	Locks  *lock.Guard
	Logger zerolog.Logger
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("transaction: repository is required")
	}
	if cfg.Carts == nil {
		return nil, errors.New("transaction: cart provider is required")
	}
	if cfg.Discounts == nil {
		return nil, errors.New("transaction: discount marker is required")
	}
	if cfg.Customers == nil {
		return nil, errors.New("transaction: points settler is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      cfg.Repo,
		carts:     cfg.Carts,
		discounts: cfg.Discounts,
		customers: cfg.Customers,
		locks:     cfg.Locks,
		logger:    cfg.Logger,
		now:       now,
	}, nil
}

// FinalizeInput carries the checkout payload.
type FinalizeInput struct {
	CartID      string          `json:"cart_id" validate:"required"`
	PaymentType string          `json:"payment_type" validate:"required"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
}

// Result bundles the persisted transaction with its items.
type Result struct {
	Transaction Transaction `json:"transaction"`
	Items       []Item      `json:"items"`
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []Transaction
	Total int64
	Page  int
	Limit int
}

// Finalize turns a cart into a permanent transaction: it recomputes the
// breakdown, checks the tender, persists the sale, settles loyalty points,
// burns the discount usage, and drops the cart. The cart is the unit of
// idempotency; once deleted a replay finds nothing to finalize.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (Result, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Result{}, err
	}
	paymentType := PaymentType(in.PaymentType)
	if !paymentType.Valid() {
		return Result{}, &common.AppError{
			Code:       "BAD_REQUEST",
			Message:    fmt.Sprintf("unknown payment type %q", in.PaymentType),
			HTTPStatus: http.StatusBadRequest,
			Details:    map[string]any{"field": "payment_type"},
		}
	}

	if s.locks != nil {
		var res Result
		err := s.locks.Do(ctx, "finalize:"+in.CartID, func(ctx context.Context) error {
			var err error
			res, err = s.finalize(ctx, in, paymentType)
			return err
		})
		if errors.Is(err, lock.ErrHeld) {
			return Result{}, common.Conflict("CONFLICT", "checkout already in progress for this cart", err)
		}
		return res, err
	}
	return s.finalize(ctx, in, paymentType)
}

func (s *Service) finalize(ctx context.Context, in FinalizeInput, paymentType PaymentType) (Result, error) {
	c, err := s.carts.Get(ctx, in.CartID)
	if err != nil {
		return Result{}, err
	}
	breakdown, err := s.carts.BreakdownFor(ctx, c)
	if err != nil {
		s.countFinalize(paymentType, "rejected")
		return Result{}, err
	}

	amountPaid := in.AmountPaid
	change := decimal.Zero
	status := StatusPending
	if paymentType == PaymentCash {
		if amountPaid.LessThan(breakdown.GrandTotal) {
			s.countFinalize(paymentType, "rejected")
			return Result{}, &common.AppError{
				Code:       "INSUFFICIENT_PAYMENT",
				Message:    "amount paid is below the grand total",
				HTTPStatus: http.StatusUnprocessableEntity,
				Details:    map[string]any{"grand_total": breakdown.GrandTotal.String()},
			}
		}
		change = amountPaid.Sub(breakdown.GrandTotal)
		status = StatusPaid
	} else {
		// Non-cash tenders settle the exact amount through the terminal.
		amountPaid = breakdown.GrandTotal
	}

	var discountID string
	if c.DiscountCode != "" {
		d, _, err := s.discounts.Resolve(ctx, c.DiscountCode, breakdown.GrossSales)
		if err != nil {
			s.countFinalize(paymentType, "rejected")
			return Result{}, err
		}
		discountID = d.ID
	}

	t := Transaction{
		InvoiceNumber:         s.invoiceNumber(),
		CustomerID:            c.CustomerID,
		DiscountCode:          c.DiscountCode,
		PaymentType:           paymentType,
		PaymentStatus:         status,
		GrossSales:            breakdown.GrossSales,
		ItemDiscounts:         breakdown.ItemDiscounts,
		TransactionDiscount:   breakdown.TransactionDiscount,
		TotalDiscount:         breakdown.TotalDiscount,
		SubtotalAfterDiscount: breakdown.SubtotalAfterDiscount,
		LoyaltyRedemption:     breakdown.LoyaltyRedemption,
		PointsRedeemed:        c.PointsToRedeem,
		DPP:                   breakdown.DPP,
		TaxRate:               breakdown.TaxRate,
		TaxAmount:             breakdown.TaxAmount,
		GrandTotal:            breakdown.GrandTotal,
		PointsEarned:          breakdown.PointsEarned,
		AmountPaid:            amountPaid,
		Change:                change,
	}
	items := make([]Item, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, Item{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Name:      it.Name,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			UnitCost:  it.UnitCost,
			Subtotal:  it.Subtotal,
		})
	}

	if err := s.repo.Create(ctx, &t, items); err != nil {
		s.countFinalize(paymentType, "failed")
		if errors.Is(err, ErrStockConflict) {
			return Result{}, common.Conflict("INSUFFICIENT_STOCK", "stock changed during checkout", err)
		}
		return Result{}, err
	}

	// Post-persist settlement. Failures here must not undo the sale; they
	// are logged and left for reconciliation.
	if discountID != "" {
		if err := s.discounts.MarkUsed(ctx, discountID); err != nil {
			s.logger.Error().Err(err).Str("transaction_id", t.ID).Str("discount_id", discountID).
				Msg("failed to record discount usage")
		}
	}
	if c.CustomerID != "" {
		if _, err := s.customers.ApplyPointsDelta(ctx, c.CustomerID, t.PointsEarned, c.PointsToRedeem, t.GrandTotal); err != nil {
			s.logger.Error().Err(err).Str("transaction_id", t.ID).Str("customer_id", c.CustomerID).
				Msg("failed to settle loyalty points")
		}
	}
	if err := s.carts.Delete(ctx, c.ID); err != nil {
		s.logger.Warn().Err(err).Str("cart_id", c.ID).Msg("failed to drop finalized cart")
	}

	s.countFinalize(paymentType, "ok")
	if obs.TransactionAmount != nil {
		amount, _ := t.GrandTotal.Float64()
		obs.TransactionAmount.Observe(amount)
		obs.PointsRedeemedTotal.Add(float64(c.PointsToRedeem))
		obs.PointsEarnedTotal.Add(float64(t.PointsEarned))
	}
	s.logger.Info().Str("transaction_id", t.ID).Str("invoice", t.InvoiceNumber).
		Str("payment_type", string(paymentType)).Str("grand_total", t.GrandTotal.String()).
		Msg("transaction finalized")

	return Result{Transaction: t, Items: items}, nil
}

// Get returns a transaction with its items.
func (s *Service) Get(ctx context.Context, id string) (Result, error) {
	t, items, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Result{}, s.mapRepoError(err)
	}
	if items == nil {
		items = []Item{}
	}
	return Result{Transaction: t, Items: items}, nil
}

// List returns transactions matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	f.Limit = limit
	f.Offset = (page - 1) * limit
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Transaction{}
	}
	return ListResult{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// MarkPaid settles a pending non-cash transaction.
func (s *Service) MarkPaid(ctx context.Context, id string) (Result, error) {
	t, _, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Result{}, s.mapRepoError(err)
	}
	if t.PaymentStatus == StatusPaid {
		return Result{}, common.Conflict("CONFLICT", "transaction already paid", nil)
	}
	if err := s.repo.SetPaymentStatus(ctx, id, StatusPaid); err != nil {
		return Result{}, s.mapRepoError(err)
	}
	return s.Get(ctx, id)
}

// ExportCoretax returns the tax export rows for [from, to).
func (s *Service) ExportCoretax(ctx context.Context, from, to time.Time) ([]CoretaxRow, error) {
	if !to.After(from) {
		return nil, &common.AppError{
			Code: "BAD_REQUEST", Message: "to must be after from", HTTPStatus: http.StatusBadRequest,
		}
	}
	rows, err := s.repo.ExportRows(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []CoretaxRow{}
	}
	return rows, nil
}

func (s *Service) countFinalize(paymentType PaymentType, result string) {
	if obs.TransactionTotal != nil {
		obs.TransactionTotal.WithLabelValues(string(paymentType), result).Inc()
	}
}

// invoiceNumber builds INV-<yyyymmddhhmmss>-<4 hex>, the receipt numbering
// printed on customer invoices.
func (s *Service) invoiceNumber() string {
	buf := make([]byte, 2)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("INV-%s-%s", s.now().Format("20060102150405"), strings.ToUpper(hex.EncodeToString(buf)))
}

func (s *Service) mapRepoError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return common.NotFound("transaction", err)
	}
	return err
}
