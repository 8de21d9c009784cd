package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TreatRecord freezes the group total at the moment a participant declared
// they pay for everyone. The amount is never recomputed; later submissions do
// not change what the payer agreed to. Canceling the treat deletes the record
// along with the group's payer marker.
type TreatRecord struct {
	bun.BaseModel `bun:"table:treat_records"`

	TreatID   string          `bun:"treat_id,pk" json:"treat_id"`
	GroupID   string          `bun:"group_id" json:"group_id"`
	UserID    string          `bun:"user_id" json:"user_id"`
	Amount    decimal.Decimal `bun:"amount" json:"amount"`
	Note      string          `bun:"note,nullzero" json:"note,omitempty"`
	CreatedAt time.Time       `bun:"created_at" json:"created_at"`
}
