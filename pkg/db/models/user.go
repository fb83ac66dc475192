package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the customer identity. Balance is a materialized aggregate of the
// user's balance transactions; it is mutated only by the ledger, inside the
// same database transaction that appends the corresponding rows.
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Phone     string     `gorm:"type:text;not null;uniqueIndex"`
	Name      *string    `gorm:"column:name"`
	Role      string     `gorm:"column:role;not null;default:'USER'"`
	Balance   int64      `gorm:"column:balance;not null;default:0"`
	FCMToken  *string    `gorm:"column:fcm_token"`
	LastSeen  *time.Time `gorm:"column:last_seen"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
