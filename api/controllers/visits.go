package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/api/middleware"
	"github.com/avtovin/avtovin-backend/api/responses"
	"github.com/avtovin/avtovin-backend/api/validators"
	"github.com/avtovin/avtovin-backend/internal/visits"
	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

type recordVisitServiceRequest struct {
	ServiceID string  `json:"service_id" validate:"required,uuid"`
	Price     int64   `json:"price" validate:"required,min=1"`
	Details   *string `json:"details"`
}

type recordVisitRequest struct {
	CarID        string                      `json:"car_id" validate:"required,uuid"`
	PartnerID    *string                     `json:"partner_id" validate:"omitempty,uuid"`
	Description  string                      `json:"description" validate:"max=500"`
	Mileage      *int                        `json:"mileage" validate:"omitempty,min=0"`
	CashbackUsed int64                       `json:"cashback_used" validate:"min=0"`
	TotalAmount  *int64                      `json:"total_amount" validate:"omitempty,min=1"`
	Services     []recordVisitServiceRequest `json:"services" validate:"omitempty,dive"`
}

type visitLineResponse struct {
	ServiceName string  `json:"service_name"`
	Price       int64   `json:"price"`
	Commission  int64   `json:"commission"`
	Cashback    int64   `json:"cashback"`
	Details     *string `json:"details,omitempty"`
}

type visitResponse struct {
	ID           uuid.UUID           `json:"id"`
	CarID        uuid.UUID           `json:"car_id"`
	PartnerID    uuid.UUID           `json:"partner_id"`
	Description  string              `json:"description"`
	Cost         int64               `json:"cost"`
	Mileage      *int                `json:"mileage,omitempty"`
	Cashback     int64               `json:"cashback"`
	CashbackUsed int64               `json:"cashback_used"`
	ServiceFee   int64               `json:"service_fee"`
	Status       string              `json:"status"`
	SettlementID *uuid.UUID          `json:"settlement_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	Lines        []visitLineResponse `json:"services"`
}

type visitListResponse struct {
	Items      []visitResponse `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
}

func toVisitResponse(visit *models.Visit) visitResponse {
	resp := visitResponse{
		ID:           visit.ID,
		CarID:        visit.CarID,
		PartnerID:    visit.PartnerID,
		Description:  visit.Description,
		Cost:         visit.Cost,
		Mileage:      visit.Mileage,
		Cashback:     visit.Cashback,
		CashbackUsed: visit.CashbackUsed,
		ServiceFee:   visit.ServiceFee,
		Status:       string(visit.Status),
		SettlementID: visit.SettlementID,
		CreatedAt:    visit.CreatedAt,
		Lines:        []visitLineResponse{},
	}
	for _, line := range visit.Lines {
		resp.Lines = append(resp.Lines, visitLineResponse{
			ServiceName: line.ServiceName,
			Price:       line.Price,
			Commission:  line.Commission,
			Cashback:    line.Cashback,
			Details:     line.Details,
		})
	}
	return resp
}

func actorFromContext(r *http.Request) (uuid.UUID, enums.Role, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor identity")
	}
	role, err := enums.ParseRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor role")
	}
	return userID, role, nil
}

// RecordVisit is the single write entry point for visits.
func RecordVisit(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req recordVisitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		carID, err := uuid.Parse(req.CarID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid car id"))
			return
		}

		input := visits.RecordVisitInput{
			ActorUserID:  actorID,
			ActorRole:    role,
			CarID:        carID,
			Description:  req.Description,
			Mileage:      req.Mileage,
			CashbackUsed: req.CashbackUsed,
			TotalAmount:  req.TotalAmount,
		}
		if req.PartnerID != nil {
			partnerID, err := uuid.Parse(*req.PartnerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid partner id"))
				return
			}
			input.PartnerID = &partnerID
		}
		for _, line := range req.Services {
			serviceID, err := uuid.Parse(line.ServiceID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid service id"))
				return
			}
			input.Services = append(input.Services, visits.ServiceLine{
				ServiceID: serviceID,
				Price:     line.Price,
				Details:   line.Details,
			})
		}

		visit, err := svc.RecordVisit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toVisitResponse(visit))
	}
}

// GetVisit returns one visit, scoped to the caller's role.
func GetVisit(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := validators.UUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		visit, err := svc.GetVisit(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch role {
		case enums.RoleAdmin:
		case enums.RoleUser:
			if visit.Car == nil || visit.Car.UserID != actorID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "visit belongs to another user"))
				return
			}
		case enums.RolePartnerManager:
			partner, err := svc.PartnerForManager(r.Context(), actorID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if visit.PartnerID != partner.ID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "visit belongs to another partner"))
				return
			}
		}
		responses.WriteSuccess(w, toVisitResponse(visit))
	}
}

// ListVisits returns paginated visits scoped to the caller's role.
func ListVisits(svc visits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := visits.ListFilter{}
		if filter.CarID, err = validators.UUIDQuery(r, "car_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch role {
		case enums.RoleUser:
			filter.UserID = &actorID
		case enums.RolePartnerManager:
			partner, err := svc.PartnerForManager(r.Context(), actorID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			filter.PartnerID = &partner.ID
		case enums.RoleAdmin:
			if filter.PartnerID, err = validators.UUIDQuery(r, "partner_id"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if filter.UserID, err = validators.UUIDQuery(r, "user_id"); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		page := pagination.FromQuery(r.URL.Query())
		rows, total, err := svc.ListVisits(r.Context(), filter, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := visitListResponse{
			Items:      []visitResponse{},
			Total:      total,
			Page:       page.Number,
			TotalPages: page.TotalPages(total),
		}
		for i := range rows {
			resp.Items = append(resp.Items, toVisitResponse(&rows[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}
