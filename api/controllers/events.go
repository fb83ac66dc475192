package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/avtovin/avtovin-backend/api/responses"
	"github.com/avtovin/avtovin-backend/api/validators"
	"github.com/avtovin/avtovin-backend/internal/notifier"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
)

type notifierService interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload any)
}

type notifyRequest struct {
	UserID  string         `json:"user_id" validate:"required,uuid"`
	Event   string         `json:"event" validate:"required"`
	Payload map[string]any `json:"payload"`
}

// NotifyUser lets a partner terminal send the pre-visit notice to a car
// owner. Delivery is best-effort; the endpoint acknowledges the attempt.
func NotifyUser(svc notifierService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notifyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if req.Event != notifier.EventScanStarted {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unsupported event").
				WithDetails(map[string]any{"event": req.Event}))
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}

		svc.Notify(r.Context(), userID, req.Event, req.Payload)
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}
