package visits

import (
	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/pkg/enums"
)

// ServiceLine is one requested catalog service on an itemized visit.
type ServiceLine struct {
	ServiceID uuid.UUID
	Price     int64
	Details   *string
}

// RecordVisitInput carries everything the recording flow needs. PartnerID is
// required for admins; partner managers are resolved to their own partner and
// may not record for anyone else.
type RecordVisitInput struct {
	ActorUserID  uuid.UUID
	ActorRole    enums.Role
	PartnerID    *uuid.UUID
	CarID        uuid.UUID
	Description  string
	Mileage      *int
	CashbackUsed int64
	TotalAmount  *int64
	Services     []ServiceLine
}

// VisitCreatedEvent is the post-commit notification payload sent to the car
// owner.
type VisitCreatedEvent struct {
	VisitID      uuid.UUID         `json:"visit_id"`
	CarName      string            `json:"car_name"`
	PartnerName  string            `json:"partner_name"`
	PartnerType  enums.PartnerType `json:"partner_type"`
	Description  string            `json:"description"`
	Mileage      *int              `json:"mileage,omitempty"`
	Cost         int64             `json:"cost"`
	Cashback     int64             `json:"cashback"`
	CashbackUsed int64             `json:"cashback_used"`
}
