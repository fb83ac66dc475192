package models

import (
	"time"

	"github.com/google/uuid"
)

// Car is owned by exactly one user. Mileage and LastServiceAt are updated as
// a side effect of visit recording; the rest of the car lifecycle is managed
// by the external car-management service.
type Car struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	VIN           *string    `gorm:"column:vin"`
	Brand         string     `gorm:"column:brand;not null"`
	Model         string     `gorm:"column:model;not null"`
	PlateNumber   *string    `gorm:"column:plate_number"`
	Mileage       *int       `gorm:"column:mileage"`
	LastServiceAt *time.Time `gorm:"column:last_service_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Owner *User `gorm:"foreignKey:UserID"`
}
