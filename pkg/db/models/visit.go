package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/pkg/enums"
)

// Visit is immutable once created. Cost, Cashback, CashbackUsed and
// ServiceFee are totals over the visit's line items; SettlementID is stamped
// when the visit is pulled into a settlement so the batcher never counts it
// twice.
type Visit struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CarID        uuid.UUID         `gorm:"column:car_id;type:uuid;not null;index"`
	PartnerID    uuid.UUID         `gorm:"column:partner_id;type:uuid;not null;index"`
	Description  string            `gorm:"column:description;not null"`
	Cost         int64             `gorm:"column:cost;not null"`
	Mileage      *int              `gorm:"column:mileage"`
	Cashback     int64             `gorm:"column:cashback;not null;default:0"`
	CashbackUsed int64             `gorm:"column:cashback_used;not null;default:0"`
	ServiceFee   int64             `gorm:"column:service_fee;not null;default:0"`
	Status       enums.VisitStatus `gorm:"column:status;not null;default:'COMPLETED'"`
	SettlementID *uuid.UUID        `gorm:"column:settlement_id;type:uuid;index"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`

	Car     *Car               `gorm:"foreignKey:CarID"`
	Partner *Partner           `gorm:"foreignKey:PartnerID"`
	Lines   []VisitServiceLine `gorm:"foreignKey:VisitID"`
}

// VisitServiceLine is one priced line of a visit: a catalog service in
// itemized mode, or a single synthetic line in flat-amount mode. Each line
// keeps its own commission/cashback split for audit.
type VisitServiceLine struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	VisitID     uuid.UUID `gorm:"column:visit_id;type:uuid;not null;index"`
	ServiceName string    `gorm:"column:service_name;not null"`
	Price       int64     `gorm:"column:price;not null"`
	Commission  int64     `gorm:"column:commission;not null"`
	Cashback    int64     `gorm:"column:cashback;not null"`
	Details     *string   `gorm:"column:details"`
}

// TableName keeps the historical table name for visit lines.
func (VisitServiceLine) TableName() string {
	return "visit_services"
}
