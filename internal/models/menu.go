package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Catalog tables. The core only ever reads these; admin CRUD lives outside
// this service. Prices on order lines are copied from here at add-time and
// never re-read, so later menu edits do not touch existing carts.

type Store struct {
	bun.BaseModel `bun:"table:stores"`

	StoreID  string `bun:"store_id,pk" json:"store_id"`
	Name     string `bun:"name" json:"name"`
	IsActive bool   `bun:"is_active" json:"is_active"`
}

type Menu struct {
	bun.BaseModel `bun:"table:menus"`

	MenuID    string    `bun:"menu_id,pk" json:"menu_id"`
	StoreID   string    `bun:"store_id" json:"store_id"`
	IsActive  bool      `bun:"is_active" json:"is_active"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}

type MenuItem struct {
	bun.BaseModel `bun:"table:menu_items"`

	ItemID    string `bun:"item_id,pk" json:"item_id"`
	MenuID    string `bun:"menu_id" json:"menu_id"`
	Name      string `bun:"name" json:"name"`
	BasePrice decimal.Decimal `bun:"base_price" json:"base_price"`
	// Price for the large size. Items without a large price reject the size
	// selection (normalized away, see order.UnitPrice).
	LargePrice decimal.NullDecimal `bun:"large_price,nullzero" json:"large_price,omitempty"`
	SortOrder  int                 `bun:"sort_order" json:"sort_order"`
}

// ItemOption is a per-item customization with a price delta (e.g. oat milk +10).
type ItemOption struct {
	bun.BaseModel `bun:"table:item_options"`

	OptionID   string          `bun:"option_id,pk" json:"option_id"`
	ItemID     string          `bun:"item_id" json:"item_id"`
	Name       string          `bun:"name" json:"name"`
	PriceDelta decimal.Decimal `bun:"price_delta" json:"price_delta"`
	SortOrder  int             `bun:"sort_order" json:"sort_order"`
}

// StoreTopping is a store-wide add-on with a flat price (e.g. pearls +10).
type StoreTopping struct {
	bun.BaseModel `bun:"table:store_toppings"`

	ToppingID string          `bun:"topping_id,pk" json:"topping_id"`
	StoreID   string          `bun:"store_id" json:"store_id"`
	Name      string          `bun:"name" json:"name"`
	Price     decimal.Decimal `bun:"price" json:"price"`
	IsActive  bool            `bun:"is_active" json:"is_active"`
}
