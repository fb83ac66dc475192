package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/pkg/enums"
)

// BalanceTransaction is an append-only, immutable ledger row. Amount is
// signed: positive for CASHBACK_EARN, negative for CASHBACK_SPEND. The sum of
// a user's rows is the source of truth for User.Balance.
type BalanceTransaction struct {
	ID          uuid.UUID                    `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID                    `gorm:"column:user_id;type:uuid;not null;index"`
	Amount      int64                        `gorm:"column:amount;not null"`
	Type        enums.BalanceTransactionType `gorm:"column:type;not null"`
	Description string                       `gorm:"column:description;not null"`
	VisitID     *uuid.UUID                   `gorm:"column:visit_id;type:uuid;index"`
	CreatedAt   time.Time                    `gorm:"column:created_at;autoCreateTime"`

	Visit *Visit `gorm:"foreignKey:VisitID"`
}
