package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/pkg/enums"
)

// Partner is a service center, auto shop or car wash that records visits.
// CommissionPercent and DiscountPercent only apply in flat-amount pricing
// mode (auto shops, car washes without an itemized service list).
type Partner struct {
	ID                uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string            `gorm:"column:name;not null"`
	Type              enums.PartnerType `gorm:"column:type;not null;default:'SERVICE_CENTER'"`
	City              *string           `gorm:"column:city"`
	Phone             *string           `gorm:"column:phone"`
	// no column default: gorm must write false explicitly or a deactivated
	// partner could never be persisted through Create
	IsActive          bool              `gorm:"column:is_active;not null"`
	CommissionPercent *float64          `gorm:"column:commission_percent"`
	DiscountPercent   *float64          `gorm:"column:discount_percent"`
	ManagerID         *uuid.UUID        `gorm:"column:manager_id;type:uuid;uniqueIndex"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
