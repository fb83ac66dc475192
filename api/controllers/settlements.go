package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/api/responses"
	"github.com/avtovin/avtovin-backend/api/validators"
	"github.com/avtovin/avtovin-backend/internal/settlements"
	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

type createSettlementBatchRequest struct {
	PeriodStart string `json:"period_start" validate:"required"`
	PeriodEnd   string `json:"period_end" validate:"required"`
}

type updateSettlementRequest struct {
	IsPaid        *bool   `json:"is_paid"`
	ReceiptStatus *string `json:"receipt_status" validate:"omitempty,oneof=NONE PENDING APPROVED REJECTED"`
	ReceiptURL    *string `json:"receipt_url" validate:"omitempty,url"`
}

type settlementResponse struct {
	ID                    uuid.UUID `json:"id"`
	PartnerID             uuid.UUID `json:"partner_id"`
	PartnerName           string    `json:"partner_name,omitempty"`
	PeriodStart           time.Time `json:"period_start"`
	PeriodEnd             time.Time `json:"period_end"`
	TotalCommission       int64     `json:"total_commission"`
	TotalCashbackRedeemed int64     `json:"total_cashback_redeemed"`
	NetAmount             int64     `json:"net_amount"`
	IsPaid                bool      `json:"is_paid"`
	ReceiptURL            *string   `json:"receipt_url,omitempty"`
	ReceiptStatus         string    `json:"receipt_status"`
	CreatedAt             time.Time `json:"created_at"`
}

type settlementListResponse struct {
	Items      []settlementResponse `json:"items"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	TotalPages int                  `json:"total_pages"`
}

func toSettlementResponse(settlement *models.Settlement) settlementResponse {
	resp := settlementResponse{
		ID:                    settlement.ID,
		PartnerID:             settlement.PartnerID,
		PeriodStart:           settlement.PeriodStart,
		PeriodEnd:             settlement.PeriodEnd,
		TotalCommission:       settlement.TotalCommission,
		TotalCashbackRedeemed: settlement.TotalCashbackRedeemed,
		NetAmount:             settlement.NetAmount,
		IsPaid:                settlement.IsPaid,
		ReceiptURL:            settlement.ReceiptURL,
		ReceiptStatus:         string(settlement.ReceiptStatus),
		CreatedAt:             settlement.CreatedAt,
	}
	if settlement.Partner != nil {
		resp.PartnerName = settlement.Partner.Name
	}
	return resp
}

// CreateSettlementBatch settles the period for every partner with unsettled
// visits.
func CreateSettlementBatch(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSettlementBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		periodStart, err := validators.TimeField(req.PeriodStart, "period_start")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		periodEnd, err := validators.TimeField(req.PeriodEnd, "period_end")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.CreateBatch(r.Context(), periodStart, periodEnd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := make([]settlementResponse, 0, len(created))
		for i := range created {
			resp = append(resp, toSettlementResponse(&created[i]))
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// ListSettlements returns paginated settlements with optional filters.
func ListSettlements(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := settlements.ListFilter{}
		var err error
		if filter.PartnerID, err = validators.UUIDQuery(r, "partner_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.IsPaid, err = validators.BoolQuery(r, "is_paid"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := pagination.FromQuery(r.URL.Query())
		rows, total, err := svc.ListSettlements(r.Context(), filter, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := settlementListResponse{
			Items:      []settlementResponse{},
			Total:      total,
			Page:       page.Number,
			TotalPages: page.TotalPages(total),
		}
		for i := range rows {
			resp.Items = append(resp.Items, toSettlementResponse(&rows[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

// GetSettlement returns one settlement.
func GetSettlement(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		settlement, err := svc.GetSettlement(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSettlementResponse(settlement))
	}
}

// UpdateSettlement applies operator edits: payment flag and receipt review.
func UpdateSettlement(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateSettlementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := settlements.UpdateInput{
			IsPaid:     req.IsPaid,
			ReceiptURL: req.ReceiptURL,
		}
		if req.ReceiptStatus != nil {
			status, err := enums.ParseReceiptStatus(*req.ReceiptStatus)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown receipt status"))
				return
			}
			input.ReceiptStatus = &status
		}

		updated, err := svc.UpdateSettlement(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSettlementResponse(updated))
	}
}

// DeleteSettlement removes an unpaid settlement and frees its visits.
func DeleteSettlement(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.UUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteSettlement(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
