package cart

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/customer"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/engine"
	"github.com/noah-isme/backend-kasir/internal/obs"
)

type productGetter interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}

type customerGetter interface {
	Get(ctx context.Context, id string) (customer.Customer, error)
}

type discountResolver interface {
	Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (discount.Discount, engine.DiscountSpec, error)
}

// Service manages the cart lifecycle and computes breakdown previews.
type Service struct {
	store     *Store
	engine    *engine.Engine
	products  productGetter
	customers customerGetter
	discounts discountResolver
	now       func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store     *Store
	Engine    *engine.Engine
	Products  productGetter
	Customers customerGetter
	Discounts discountResolver
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("cart: store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("cart: engine is required")
	}
	if cfg.Products == nil {
		return nil, errors.New("cart: product getter is required")
	}
	if cfg.Customers == nil {
		return nil, errors.New("cart: customer getter is required")
	}
	if cfg.Discounts == nil {
		return nil, errors.New("cart: discount resolver is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     cfg.Store,
		engine:    cfg.Engine,
		products:  cfg.Products,
		customers: cfg.Customers,
		discounts: cfg.Discounts,
		now:       now,
	}, nil
}

// Create opens a new empty cart.
func (s *Service) Create(ctx context.Context) (Cart, error) {
	now := s.now()
	c := Cart{ID: uuid.NewString(), Items: []Item{}, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Save(ctx, &c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Get loads a cart.
func (s *Service) Get(ctx context.Context, id string) (Cart, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Cart{}, s.mapStoreError(err)
	}
	return c, nil
}

// Delete drops a cart.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return s.mapStoreError(err)
	}
	return s.store.Delete(ctx, id)
}

// AddItem puts qty units of a product into the cart, merging with an
// existing line for the same product.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, badRequest("quantity", "quantity must be at least 1")
	}
	c, err := s.store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, s.mapStoreError(err)
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if !product.IsActive {
		return Cart{}, &common.AppError{
			Code: "PRODUCT_INACTIVE", Message: "product is not for sale", HTTPStatus: http.StatusUnprocessableEntity,
		}
	}

	total := qty
	idx := -1
	for i, item := range c.Items {
		if item.ProductID == productID {
			total += item.Qty
			idx = i
			break
		}
	}
	if int32(total) > product.Stock {
		return Cart{}, &common.AppError{
			Code:       "INSUFFICIENT_STOCK",
			Message:    "not enough stock",
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"available": product.Stock},
		}
	}

	line := Item{
		ProductID: product.ID,
		SKU:       product.SKU,
		Name:      product.Name,
		Qty:       total,
		UnitPrice: product.Price,
		UnitCost:  product.Cost,
		Subtotal:  s.engine.ItemSubtotal(product.Price, total),
	}
	if idx >= 0 {
		c.Items[idx] = line
	} else {
		c.Items = append(c.Items, line)
	}
	return s.save(ctx, c)
}

// UpdateItem sets the quantity of an existing line. Zero removes it.
func (s *Service) UpdateItem(ctx context.Context, cartID, productID string, qty int) (Cart, error) {
	if qty < 0 {
		return Cart{}, badRequest("quantity", "quantity must not be negative")
	}
	c, err := s.store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, s.mapStoreError(err)
	}
	idx := -1
	for i, item := range c.Items {
		if item.ProductID == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Cart{}, &common.AppError{
			Code: "NOT_FOUND", Message: "item not in cart", HTTPStatus: http.StatusNotFound,
		}
	}
	if qty == 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return s.save(ctx, c)
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if int32(qty) > product.Stock {
		return Cart{}, &common.AppError{
			Code:       "INSUFFICIENT_STOCK",
			Message:    "not enough stock",
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"available": product.Stock},
		}
	}
	c.Items[idx].Qty = qty
	c.Items[idx].Subtotal = s.engine.ItemSubtotal(c.Items[idx].UnitPrice, qty)
	return s.save(ctx, c)
}

// RemoveItem deletes a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (Cart, error) {
	return s.UpdateItem(ctx, cartID, productID, 0)
}

// AttachCustomer links a loyalty member to the cart.
func (s *Service) AttachCustomer(ctx context.Context, cartID, customerID string) (Cart, error) {
	c, err := s.store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, s.mapStoreError(err)
	}
	if customerID == "" {
		c.CustomerID = ""
		c.PointsToRedeem = 0
		return s.save(ctx, c)
	}
	member, err := s.customers.Get(ctx, customerID)
	if err != nil {
		return Cart{}, err
	}
	c.CustomerID = member.ID
	return s.save(ctx, c)
}

// ApplyDiscount validates a code against the current subtotal and stores it
// on the cart. An empty code clears the discount.
func (s *Service) ApplyDiscount(ctx context.Context, cartID, code string) (Cart, error) {
	c, err := s.store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, s.mapStoreError(err)
	}
	if code == "" {
		c.DiscountCode = ""
		return s.save(ctx, c)
	}
	subtotal := s.engine.Subtotal(s.lineItems(c))
	d, _, err := s.discounts.Resolve(ctx, code, subtotal)
	if err != nil {
		if obs.DiscountAppliedTotal != nil {
			obs.DiscountAppliedTotal.WithLabelValues("rejected").Inc()
		}
		return Cart{}, err
	}
	if obs.DiscountAppliedTotal != nil {
		obs.DiscountAppliedTotal.WithLabelValues("applied").Inc()
	}
	c.DiscountCode = d.Code
	return s.save(ctx, c)
}

// ApplyLoyalty records how many points the customer wants to redeem.
func (s *Service) ApplyLoyalty(ctx context.Context, cartID string, points int64) (Cart, error) {
	if points < 0 {
		return Cart{}, badRequest("points", "points must not be negative")
	}
	c, err := s.store.Get(ctx, cartID)
	if err != nil {
		return Cart{}, s.mapStoreError(err)
	}
	if points == 0 {
		c.PointsToRedeem = 0
		return s.save(ctx, c)
	}
	if c.CustomerID == "" {
		return Cart{}, &common.AppError{
			Code: "CUSTOMER_REQUIRED", Message: "attach a customer before redeeming points", HTTPStatus: http.StatusUnprocessableEntity,
		}
	}
	member, err := s.customers.Get(ctx, c.CustomerID)
	if err != nil {
		return Cart{}, err
	}
	if points > member.Points {
		return Cart{}, &common.AppError{
			Code:       "INSUFFICIENT_POINTS",
			Message:    "insufficient points",
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"available": member.Points},
		}
	}
	c.PointsToRedeem = points
	return s.save(ctx, c)
}

// Breakdown computes the financial preview for the cart's current state.
// Nothing is persisted; the same computation runs again at finalization.
func (s *Service) Breakdown(ctx context.Context, cartID string) (engine.Breakdown, error) {
	c, err := s.store.Get(ctx, cartID)
	if err != nil {
		return engine.Breakdown{}, s.mapStoreError(err)
	}
	return s.BreakdownFor(ctx, c)
}

// BreakdownFor computes the breakdown for an already loaded cart. The
// transaction service reuses it during finalization.
func (s *Service) BreakdownFor(ctx context.Context, c Cart) (engine.Breakdown, error) {
	if len(c.Items) == 0 {
		return engine.Breakdown{}, &common.AppError{
			Code: "CART_EMPTY", Message: "cart has no items", HTTPStatus: http.StatusUnprocessableEntity,
		}
	}
	items := s.lineItems(c)

	var spec *engine.DiscountSpec
	if c.DiscountCode != "" {
		_, resolved, err := s.discounts.Resolve(ctx, c.DiscountCode, s.engine.Subtotal(items))
		if err != nil {
			return engine.Breakdown{}, err
		}
		spec = &resolved
	}

	tier := engine.TierRegular
	if c.CustomerID != "" {
		member, err := s.customers.Get(ctx, c.CustomerID)
		if err != nil {
			return engine.Breakdown{}, err
		}
		tier = member.MemberType
		if c.PointsToRedeem > member.Points {
			return engine.Breakdown{}, &common.AppError{
				Code:       "INSUFFICIENT_POINTS",
				Message:    "insufficient points",
				HTTPStatus: http.StatusUnprocessableEntity,
				Details:    map[string]any{"available": member.Points},
			}
		}
	}

	breakdown, err := s.engine.Breakdown(items, spec, c.PointsToRedeem, tier, true)
	if err != nil {
		var marginErr *engine.MarginError
		if errors.As(err, &marginErr) {
			if obs.BreakdownTotal != nil {
				obs.BreakdownTotal.WithLabelValues("margin_rejected").Inc()
				obs.MarginRejectionTotal.Inc()
			}
			return engine.Breakdown{}, &common.AppError{
				Code:       "MARGIN_PROTECTION",
				Message:    marginErr.Error(),
				HTTPStatus: http.StatusUnprocessableEntity,
				Err:        err,
				Details: map[string]any{
					"margin": marginErr.Margin.StringFixed(2),
					"floor":  marginErr.Floor.String(),
				},
			}
		}
		return engine.Breakdown{}, err
	}
	if obs.BreakdownTotal != nil {
		obs.BreakdownTotal.WithLabelValues("ok").Inc()
	}
	return breakdown, nil
}

func (s *Service) lineItems(c Cart) []engine.LineItem {
	items := make([]engine.LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, engine.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			Qty:       it.Qty,
			UnitPrice: it.UnitPrice,
			UnitCost:  it.UnitCost,
			Subtotal:  it.Subtotal,
		})
	}
	return items
}

func (s *Service) save(ctx context.Context, c Cart) (Cart, error) {
	c.UpdatedAt = s.now()
	if err := s.store.Save(ctx, &c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

func (s *Service) mapStoreError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return &common.AppError{Code: "NOT_FOUND", Message: "cart not found", HTTPStatus: http.StatusNotFound, Err: err}
	}
	return err
}

func badRequest(field, message string) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"field": field},
	}
}
