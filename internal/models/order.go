package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	StatusDraft     OrderStatus = "draft"
	StatusSubmitted OrderStatus = "submitted"
	StatusEditing   OrderStatus = "editing"
)

// SizeLarge is the only size with its own catalog price; anything else uses
// the base price.
const SizeLarge = "L"

// Order is one user's cart/submission within a group. Exactly one exists per
// (group, user) pair, created lazily on the first cart mutation. Only orders
// in StatusSubmitted count toward group totals.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	OrderID string      `bun:"order_id,pk" json:"order_id"`
	GroupID string      `bun:"group_id" json:"group_id"`
	UserID  string      `bun:"user_id" json:"user_id"`
	Status  OrderStatus `bun:"status" json:"status"`
	// JSON-serialized Snapshot captured on submit→editing, cleared on
	// resubmit/cancel. Empty outside edit mode.
	Snapshot  string    `bun:"snapshot,nullzero" json:"-"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at" json:"updated_at"`
}

// OrderLine is one priced cart entry. Name and prices are frozen copies taken
// from the catalog when the line was added.
type OrderLine struct {
	bun.BaseModel `bun:"table:order_lines"`

	LineID    string          `bun:"line_id,pk" json:"line_id"`
	OrderID   string          `bun:"order_id" json:"order_id"`
	ItemID    string          `bun:"item_id" json:"item_id"`
	ItemName  string          `bun:"item_name" json:"item_name"`
	Size      string          `bun:"size,nullzero" json:"size,omitempty"`
	Quantity  int             `bun:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `bun:"unit_price" json:"unit_price"`
	Note      string          `bun:"note,nullzero" json:"note,omitempty"`
	CreatedAt time.Time       `bun:"created_at" json:"created_at"`
}

// LineOption is a chosen per-item option on a line, price delta frozen.
type LineOption struct {
	bun.BaseModel `bun:"table:line_options"`

	LineID     string          `bun:"line_id,pk" json:"line_id"`
	OptionID   string          `bun:"option_id,pk" json:"option_id"`
	Name       string          `bun:"name" json:"name"`
	PriceDelta decimal.Decimal `bun:"price_delta" json:"price_delta"`
}

// LineTopping is a chosen store-level topping on a line, price frozen.
type LineTopping struct {
	bun.BaseModel `bun:"table:line_toppings"`

	LineID    string          `bun:"line_id,pk" json:"line_id"`
	ToppingID string          `bun:"topping_id,pk" json:"topping_id"`
	Name      string          `bun:"name" json:"name"`
	Price     decimal.Decimal `bun:"price" json:"price"`
}

// Line bundles an order line with its chosen options and toppings.
type Line struct {
	OrderLine `json:"line"`
	Options   []LineOption  `json:"options"`
	Toppings  []LineTopping `json:"toppings"`
}

// OrderWithLines is the fully loaded view used by aggregation and export.
type OrderWithLines struct {
	Order `json:"order"`
	Lines []Line `json:"lines"`
}

// Snapshot is the serialized pre-edit cart, stored on the order while it is
// in StatusEditing. It is an immutable value copy, not a reference to live
// rows, so concurrent edits cannot alias into it.
type Snapshot struct {
	Lines []SnapshotLine `json:"lines"`
}

type SnapshotLine struct {
	ItemID    string            `json:"item_id"`
	ItemName  string            `json:"item_name"`
	Size      string            `json:"size,omitempty"`
	Quantity  int               `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	Note      string            `json:"note,omitempty"`
	Options   []SnapshotOption  `json:"options,omitempty"`
	Toppings  []SnapshotTopping `json:"toppings,omitempty"`
}

type SnapshotOption struct {
	OptionID   string          `json:"option_id"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

type SnapshotTopping struct {
	ToppingID string          `json:"topping_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

// TakeSnapshot captures the given lines into a serialized snapshot.
func TakeSnapshot(lines []Line) (string, error) {
	snap := Snapshot{Lines: make([]SnapshotLine, 0, len(lines))}
	for _, l := range lines {
		sl := SnapshotLine{
			ItemID:    l.ItemID,
			ItemName:  l.ItemName,
			Size:      l.Size,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Note:      l.Note,
		}
		for _, o := range l.Options {
			sl.Options = append(sl.Options, SnapshotOption{
				OptionID:   o.OptionID,
				Name:       o.Name,
				PriceDelta: o.PriceDelta,
			})
		}
		for _, t := range l.Toppings {
			sl.Toppings = append(sl.Toppings, SnapshotTopping{
				ToppingID: t.ToppingID,
				Name:      t.Name,
				Price:     t.Price,
			})
		}
		snap.Lines = append(snap.Lines, sl)
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseSnapshot decodes a serialized snapshot.
func ParseSnapshot(raw string) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
