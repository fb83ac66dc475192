package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/pkg/enums"
)

// Settlement is one partner's invoice for a closed period.
// TotalCashbackRedeemed is informational: redeemed cashback is the platform's
// own expense and does not reduce what the partner owes, so NetAmount always
// equals TotalCommission.
type Settlement struct {
	ID                    uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	PartnerID             uuid.UUID           `gorm:"column:partner_id;type:uuid;not null;index"`
	PeriodStart           time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd             time.Time           `gorm:"column:period_end;not null"`
	TotalCommission       int64               `gorm:"column:total_commission;not null"`
	TotalCashbackRedeemed int64               `gorm:"column:total_cashback_redeemed;not null"`
	NetAmount             int64               `gorm:"column:net_amount;not null"`
	IsPaid                bool                `gorm:"column:is_paid;not null;default:false"`
	ReceiptURL            *string             `gorm:"column:receipt_url"`
	ReceiptStatus         enums.ReceiptStatus `gorm:"column:receipt_status;not null;default:'NONE'"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`

	Partner *Partner `gorm:"foreignKey:PartnerID"`
}
