package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
)

// EventScanStarted is sent to a car owner when a partner scans their code,
// before any visit exists.
const EventScanStarted = "scan:started"

type publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// Envelope is the wire shape of one user notification.
type Envelope struct {
	UserID    uuid.UUID `json:"user_id"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Service fans user notifications out through the message broker. Delivery
// is best-effort: failures are logged and never surface to the caller.
type Service struct {
	pub  publisher
	logg *logger.Logger
}

// NewService builds the notifier. A nil publisher is allowed; notifications
// are then dropped with a log line, which keeps local development broker-free.
func NewService(pub publisher, logg *logger.Logger) (*Service, error) {
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &Service{pub: pub, logg: logg}, nil
}

// Notify attempts delivery and returns nothing: the caller has already
// committed and must not fail on a notification problem.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, event string, payload any) {
	ctx = s.logg.WithUserID(ctx, userID.String())
	ctx = s.logg.WithField(ctx, "event", event)

	if s.pub == nil {
		s.logg.Info(ctx, "notification dropped, no publisher configured")
		return
	}

	data, err := json.Marshal(Envelope{
		UserID:    userID,
		Event:     event,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logg.Error(ctx, "notification payload not serializable", err)
		return
	}

	attrs := map[string]string{
		"event":   event,
		"user_id": userID.String(),
	}
	if err := s.pub.Publish(ctx, data, attrs); err != nil {
		s.logg.Error(ctx, "notification publish failed", err)
		return
	}
	s.logg.Info(ctx, "notification published")
}
