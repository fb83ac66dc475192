package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/api/responses"
	"github.com/avtovin/avtovin-backend/api/validators"
	"github.com/avtovin/avtovin-backend/internal/settlements"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
)

type partnerFinancesResponse struct {
	PartnerID           uuid.UUID            `json:"partner_id"`
	PartnerName         string               `json:"partner_name"`
	TotalOwed           int64                `json:"total_owed"`
	TotalPaid           int64                `json:"total_paid"`
	UnsettledCommission int64                `json:"unsettled_commission"`
	UnsettledVisits     int64                `json:"unsettled_visits"`
	Settlements         []settlementResponse `json:"settlements"`
}

type submitReceiptRequest struct {
	SettlementID *string `json:"settlement_id" validate:"omitempty,uuid"`
	ReceiptURL   string  `json:"receipt_url" validate:"required,url"`
}

type submitReceiptResponse struct {
	Updated     int                  `json:"updated"`
	Settlements []settlementResponse `json:"settlements"`
}

// GetMyFinances returns the money view for the caller's partner.
func GetMyFinances(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		finances, err := svc.PartnerFinances(r.Context(), actorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := partnerFinancesResponse{
			PartnerID:           finances.Partner.ID,
			PartnerName:         finances.Partner.Name,
			TotalOwed:           finances.TotalOwed,
			TotalPaid:           finances.TotalPaid,
			UnsettledCommission: finances.UnsettledCommission,
			UnsettledVisits:     finances.UnsettledVisits,
			Settlements:         []settlementResponse{},
		}
		for i := range finances.Settlements {
			resp.Settlements = append(resp.Settlements, toSettlementResponse(&finances.Settlements[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

// SubmitReceipt attaches a payment receipt on behalf of the caller's partner.
func SubmitReceipt(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req submitReceiptRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := settlements.SubmitReceiptInput{
			ManagerID:  actorID,
			ReceiptURL: req.ReceiptURL,
		}
		if req.SettlementID != nil {
			settlementID, err := uuid.Parse(*req.SettlementID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid settlement id"))
				return
			}
			input.SettlementID = &settlementID
		}

		updated, err := svc.SubmitReceipt(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := submitReceiptResponse{
			Updated:     len(updated),
			Settlements: []settlementResponse{},
		}
		for i := range updated {
			resp.Settlements = append(resp.Settlements, toSettlementResponse(&updated[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}
