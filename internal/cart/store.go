package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Cart is the in-progress sale aggregate. It lives in Redis with a TTL so
// abandoned carts expire on their own.
type Cart struct {
	ID             string    `json:"id"`
	Items          []Item    `json:"items"`
	CustomerID     string    `json:"customer_id,omitempty"`
	DiscountCode   string    `json:"discount_code,omitempty"`
	PointsToRedeem int64     `json:"points_to_redeem"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Item is one cart line. Price and cost are frozen at the moment the item
// enters the cart so later catalog edits do not shift an open sale.
type Item struct {
	ProductID string           `json:"product_id"`
	SKU       string           `json:"product_sku"`
	Name      string           `json:"product_name"`
	Qty       int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	UnitCost  *decimal.Decimal `json:"unit_cost,omitempty"`
	Subtotal  decimal.Decimal  `json:"subtotal"`
}

// ErrNotFound indicates the cart does not exist or has expired.
var ErrNotFound = errors.New("cart: not found")

// Store persists carts as JSON blobs in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func cartKey(id string) string {
	return "cart:" + id
}

// Save writes the cart and refreshes its TTL.
func (s *Store) Save(ctx context.Context, c *Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.client.Set(ctx, cartKey(c.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Get loads a cart by id.
func (s *Store) Get(ctx context.Context, id string) (Cart, error) {
	data, err := s.client.Get(ctx, cartKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

// Delete removes a cart, typically after the sale is finalized.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, cartKey(id)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
