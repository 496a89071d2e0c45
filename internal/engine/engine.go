// Package engine implements the financial computation core of the POS
// backend: the staged subtotal, discount, loyalty redemption, tax, and grand
// total pipeline. All monetary arithmetic uses arbitrary-precision decimals;
// every stage rounds to the smallest currency unit with ties away from zero so
// downstream stages consume auditable, already-rounded amounts. The engine
// performs no I/O and holds no mutable state, so a single instance is safe to
// share across requests.
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MarginError is the only error the engine raises. It signals that the
// cumulative effect of discounts and point redemption pushed the profit margin
// below the configured floor; it is a business-rule rejection, not a data
// error, and must not be retried.
type MarginError struct {
	Margin decimal.Decimal
	Floor  decimal.Decimal
}

// Error implements the error interface.
func (e *MarginError) Error() string {
	return fmt.Sprintf("margin %s%% below minimum %s%%", e.Margin.StringFixed(2), e.Floor.String())
}

// Config holds the engine parameters. It is set once at construction and
// never mutated.
type Config struct {
	// TaxRate is the tax percentage, e.g. 11 for 11% PPN.
	TaxRate decimal.Decimal
	// TaxInclusive selects INCLUSIVE tax mode; the default is EXCLUSIVE.
	TaxInclusive bool
	// PointsPerAmount is the currency amount that earns one loyalty point.
	PointsPerAmount decimal.Decimal
	// PointValue is the currency value of one redeemed point.
	PointValue decimal.Decimal
	// MaxDiscountPct caps any discount at this percentage of the subtotal,
	// regardless of discount kind or per-discount cap.
	MaxDiscountPct decimal.Decimal
	// MinMarginPct is the margin protection floor.
	MinMarginPct decimal.Decimal
}

// DefaultConfig returns the stock Indonesian retail parameters: 11% exclusive
// PPN, one point per Rp 10.000 spent, Rp 100 per redeemed point, a 30% global
// discount cap, and a 5% margin floor.
func DefaultConfig() Config {
	return Config{
		TaxRate:         decimal.NewFromInt(11),
		PointsPerAmount: decimal.NewFromInt(10000),
		PointValue:      decimal.NewFromInt(100),
		MaxDiscountPct:  decimal.NewFromInt(30),
		MinMarginPct:    decimal.NewFromInt(5),
	}
}

// Engine computes financial breakdowns. The zero value is not usable; build
// one with New.
type Engine struct {
	cfg Config
}

// New constructs an Engine from the provided configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// round rounds to the smallest currency unit, half away from zero.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// ItemSubtotal computes a single line subtotal: round(price x qty).
func (e *Engine) ItemSubtotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return round(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}

// Subtotal sums the precomputed line subtotals. The lines are already rounded
// integers, so the sum needs no further rounding.
func (e *Engine) Subtotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}

// ApplyDiscount applies an optional transaction discount against the subtotal
// and returns the discount amount and the remaining subtotal. A fixed discount
// never exceeds the subtotal; a percentage discount honours its own cap first.
// The global MaxDiscountPct cap is enforced last, regardless of kind.
func (e *Engine) ApplyDiscount(subtotal decimal.Decimal, spec *DiscountSpec) (decimal.Decimal, decimal.Decimal) {
	if spec == nil {
		return decimal.Zero, subtotal
	}

	var amount decimal.Decimal
	switch spec.Kind {
	case DiscountPercentage:
		amount = round(subtotal.Mul(spec.Value).Div(hundred))
		if spec.MaxDiscount != nil && amount.GreaterThan(*spec.MaxDiscount) {
			amount = *spec.MaxDiscount
		}
	default:
		amount = spec.Value
		if amount.GreaterThan(subtotal) {
			amount = subtotal
		}
	}

	maxAllowed := round(subtotal.Mul(e.cfg.MaxDiscountPct).Div(hundred))
	if amount.GreaterThan(maxAllowed) {
		amount = maxAllowed
	}
	return amount, subtotal.Sub(amount)
}

// LoyaltyValue converts redeemed points into a monetary deduction, capped at
// maxRedeemable (the subtotal after discount: a customer may never redeem more
// than the remaining payable amount).
func (e *Engine) LoyaltyValue(points int64, maxRedeemable decimal.Decimal) decimal.Decimal {
	value := decimal.NewFromInt(points).Mul(e.cfg.PointValue)
	if value.GreaterThan(maxRedeemable) {
		value = maxRedeemable
	}
	return round(value)
}

// Tax computes the tax base (DPP), rate, and tax amount for the amount before
// tax. In exclusive mode the DPP is the amount itself and tax is added on top;
// in inclusive mode the DPP is extracted from the gross amount.
func (e *Engine) Tax(amount decimal.Decimal) (dpp, rate, tax decimal.Decimal) {
	if e.cfg.TaxInclusive {
		divisor := decimal.NewFromInt(1).Add(e.cfg.TaxRate.Div(hundred))
		dpp = round(amount.Div(divisor))
		return dpp, e.cfg.TaxRate, amount.Sub(dpp)
	}
	dpp = amount
	tax = round(dpp.Mul(e.cfg.TaxRate).Div(hundred))
	return dpp, e.cfg.TaxRate, tax
}

// PointsEarned computes loyalty points earned on the amount before tax, never
// on the tax-inclusive grand total.
func (e *Engine) PointsEarned(amount decimal.Decimal, tier MemberTier) int64 {
	if e.cfg.PointsPerAmount.Sign() <= 0 {
		return 0
	}
	base := amount.Div(e.cfg.PointsPerAmount).Floor()
	return base.Mul(tier.Multiplier()).Floor().IntPart()
}

// ValidateMargin runs the margin protection guard. Items without cost data are
// costed at zero; when no item carries cost the guard is skipped. The margin
// denominator is gross sales, pre-discount, matching the books this engine
// reports against.
func (e *Engine) ValidateMargin(items []LineItem, totalDiscount, redemption decimal.Decimal) error {
	totalCost := decimal.Zero
	for _, it := range items {
		if it.UnitCost == nil {
			continue
		}
		totalCost = totalCost.Add(it.UnitCost.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	if totalCost.IsZero() {
		return nil
	}

	gross := e.Subtotal(items)
	if gross.Sign() <= 0 {
		// No revenue against a positive cost: below any sensible floor.
		return &MarginError{Margin: hundred.Neg(), Floor: e.cfg.MinMarginPct}
	}
	effective := gross.Sub(totalDiscount).Sub(redemption)
	margin := effective.Sub(totalCost).Div(gross).Mul(hundred)
	if margin.LessThan(e.cfg.MinMarginPct) {
		return &MarginError{Margin: margin, Floor: e.cfg.MinMarginPct}
	}
	return nil
}

// Breakdown runs the full pipeline in its mandatory order: subtotal, discount,
// loyalty redemption, margin guard, tax, points. On a margin rejection no
// breakdown is produced and no tax or points fields are computed.
func (e *Engine) Breakdown(items []LineItem, spec *DiscountSpec, pointsRedeemed int64, tier MemberTier, validateMargin bool) (Breakdown, error) {
	grossSales := e.Subtotal(items)

	totalDiscount, subtotalAfterDiscount := e.ApplyDiscount(grossSales, spec)

	loyaltyValue := e.LoyaltyValue(pointsRedeemed, subtotalAfterDiscount)
	amountBeforeTax := subtotalAfterDiscount.Sub(loyaltyValue)
	if amountBeforeTax.Sign() < 0 {
		// The cap above makes this unreachable; clamp anyway.
		amountBeforeTax = decimal.Zero
		loyaltyValue = subtotalAfterDiscount
	}

	if validateMargin {
		if err := e.ValidateMargin(items, totalDiscount, loyaltyValue); err != nil {
			return Breakdown{}, err
		}
	}

	dpp, taxRate, taxAmount := e.Tax(amountBeforeTax)

	grandTotal := amountBeforeTax.Add(taxAmount)
	if e.cfg.TaxInclusive {
		grandTotal = amountBeforeTax
	}

	return Breakdown{
		GrossSales:            grossSales,
		ItemDiscounts:         decimal.Zero,
		TransactionDiscount:   totalDiscount,
		TotalDiscount:         totalDiscount,
		SubtotalAfterDiscount: subtotalAfterDiscount,
		LoyaltyRedemption:     loyaltyValue,
		DPP:                   dpp,
		TaxRate:               taxRate,
		TaxAmount:             taxAmount,
		GrandTotal:            grandTotal,
		PointsEarned:          e.PointsEarned(amountBeforeTax, tier),
	}, nil
}
