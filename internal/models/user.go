package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	UserID      string    `bun:"user_id,pk" json:"user_id"`
	DisplayName string    `bun:"display_name" json:"display_name"`
	IsAdmin     bool      `bun:"is_admin" json:"is_admin"`
	CreatedAt   time.Time `bun:"created_at" json:"created_at"`
}
