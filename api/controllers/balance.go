package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/api/responses"
	"github.com/avtovin/avtovin-backend/api/validators"
	"github.com/avtovin/avtovin-backend/internal/ledger"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

type balanceTransactionResponse struct {
	ID          uuid.UUID  `json:"id"`
	Amount      int64      `json:"amount"`
	Type        string     `json:"type"`
	Description string     `json:"description"`
	VisitID     *uuid.UUID `json:"visit_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type balanceResponse struct {
	UserID       uuid.UUID                    `json:"user_id"`
	Balance      int64                        `json:"balance"`
	Transactions []balanceTransactionResponse `json:"transactions"`
	Total        int64                        `json:"total"`
	Page         int                          `json:"page"`
	TotalPages   int                          `json:"total_pages"`
}

// GetUserBalance returns the account statement: the materialized balance and
// its transaction history, newest first.
func GetUserBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := validators.UUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if role != enums.RoleAdmin && userID != actorID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "balance belongs to another user"))
			return
		}

		page := pagination.FromQuery(r.URL.Query())
		statement, err := svc.Statement(r.Context(), userID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := balanceResponse{
			UserID:       statement.User.ID,
			Balance:      statement.User.Balance,
			Transactions: []balanceTransactionResponse{},
			Total:        statement.Total,
			Page:         page.Number,
			TotalPages:   page.TotalPages(statement.Total),
		}
		for _, row := range statement.Transactions {
			resp.Transactions = append(resp.Transactions, balanceTransactionResponse{
				ID:          row.ID,
				Amount:      row.Amount,
				Type:        string(row.Type),
				Description: row.Description,
				VisitID:     row.VisitID,
				CreatedAt:   row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

// ReconcileUserBalance recomputes the materialized balance from the ledger.
func ReconcileUserBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := validators.UUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Reconcile(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
