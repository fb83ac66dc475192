package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/pkg/enums"
)

// Service is a catalog entry defining itemized-mode pricing policy. Cashback
// is computed from the commission, not from the raw price.
type Service struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string         `gorm:"column:name;not null;uniqueIndex"`
	Category        string         `gorm:"column:category;not null;default:'general'"`
	CommissionType  enums.RateType `gorm:"column:commission_type;not null;default:'percent'"`
	CommissionValue int64          `gorm:"column:commission_value;not null;default:20"`
	CashbackType    enums.RateType `gorm:"column:cashback_type;not null;default:'percent'"`
	CashbackValue   int64          `gorm:"column:cashback_value;not null;default:25"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
}
