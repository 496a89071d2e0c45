package engine

import "github.com/shopspring/decimal"

// DiscountKind discriminates how a discount value is interpreted.
type DiscountKind string

const (
	// DiscountPercentage applies the value as percentage points of the subtotal.
	DiscountPercentage DiscountKind = "PERCENTAGE"
	// DiscountFixed applies the value as an absolute amount.
	DiscountFixed DiscountKind = "FIXED"
)

// MemberTier is a loyalty membership level. It only scales points earned and
// carries no discount semantics.
type MemberTier string

const (
	TierRegular  MemberTier = "REGULAR"
	TierSilver   MemberTier = "SILVER"
	TierGold     MemberTier = "GOLD"
	TierPlatinum MemberTier = "PLATINUM"
)

var tierMultipliers = map[MemberTier]decimal.Decimal{
	TierRegular:  decimal.NewFromInt(1),
	TierSilver:   decimal.RequireFromString("1.2"),
	TierGold:     decimal.RequireFromString("1.5"),
	TierPlatinum: decimal.NewFromInt(2),
}

// Multiplier returns the points multiplier for the tier. Unknown tiers fall
// back to the regular multiplier.
func (t MemberTier) Multiplier() decimal.Decimal {
	if m, ok := tierMultipliers[t]; ok {
		return m
	}
	return tierMultipliers[TierRegular]
}

// Valid reports whether the tier is one of the known membership levels.
func (t MemberTier) Valid() bool {
	_, ok := tierMultipliers[t]
	return ok
}

// LineItem is an immutable cart line as seen by the engine. Subtotal must
// equal the rounded product of UnitPrice and Qty at the time the item entered
// the pipeline. UnitCost is nil when cost tracking is disabled for a product.
type LineItem struct {
	ProductID string           `json:"product_id"`
	Name      string           `json:"product_name"`
	SKU       string           `json:"product_sku"`
	Qty       int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
}

// DiscountSpec describes a transaction-level discount already validated by the
// discount registry. MaxDiscount caps the absolute amount a percentage
// discount may yield; it is independent of the engine's global cap.
type DiscountSpec struct {
	Kind        DiscountKind     `json:"kind"`
	Value       decimal.Decimal  `json:"value"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
}

// Breakdown is the terminal artifact of one computation. Every field is
// derivable solely from the inputs and the engine configuration; it is
// produced atomically or not at all.
type Breakdown struct {
	GrossSales            decimal.Decimal `json:"gross_sales"`
	ItemDiscounts         decimal.Decimal `json:"item_discounts"`
	TransactionDiscount   decimal.Decimal `json:"transaction_discount"`
	TotalDiscount         decimal.Decimal `json:"total_discount"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	LoyaltyRedemption     decimal.Decimal `json:"loyalty_redemption"`
	DPP                   decimal.Decimal `json:"dpp"`
	TaxRate               decimal.Decimal `json:"tax_rate"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	PointsEarned          int64           `json:"points_earned"`
}
