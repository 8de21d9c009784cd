package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type Group struct {
	bun.BaseModel `bun:"table:groups"`

	GroupID string `bun:"group_id,pk" json:"group_id"`
	StoreID string `bun:"store_id" json:"store_id"`
	MenuID  string `bun:"menu_id" json:"menu_id"`
	OwnerID string `bun:"owner_id" json:"owner_id"`
	Name    string `bun:"name" json:"name"`
	Note    string `bun:"note,nullzero" json:"note,omitempty"`

	Deadline time.Time `bun:"deadline" json:"deadline"`
	IsClosed bool      `bun:"is_closed" json:"is_closed"`

	DeliveryFee decimal.NullDecimal `bun:"delivery_fee,nullzero" json:"delivery_fee,omitempty"`
	MinMembers  int                 `bun:"min_members" json:"min_members"`

	EnableLuckyDraw bool `bun:"enable_lucky_draw" json:"enable_lucky_draw"`
	LuckyDrawCount  int  `bun:"lucky_draw_count" json:"lucky_draw_count"`
	// Set exactly once by the conditional-update claim in the group store.
	LuckyDrawn bool `bun:"lucky_drawn" json:"lucky_drawn"`

	// Active treat payer, empty when nobody treats. Kept on the group rather
	// than inferred from the newest treat record so cancellation stays explicit.
	TreatUserID string `bun:"treat_user_id,nullzero" json:"treat_user_id,omitempty"`

	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}

// IsExpired reports whether the deadline has passed at the given instant.
// Expiry is never stored; it is evaluated lazily on every read and write.
func (g *Group) IsExpired(now time.Time) bool {
	return now.After(g.Deadline)
}

// IsOpen reports whether the group still accepts participant mutations.
func (g *Group) IsOpen(now time.Time) bool {
	return !g.IsClosed && !g.IsExpired(now)
}

// LuckyWinner records one drawn fee-exempt participant.
type LuckyWinner struct {
	bun.BaseModel `bun:"table:lucky_winners"`

	GroupID string    `bun:"group_id,pk" json:"group_id"`
	UserID  string    `bun:"user_id,pk" json:"user_id"`
	DrawnAt time.Time `bun:"drawn_at" json:"drawn_at"`
}
