package visits

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avtovin/avtovin-backend/internal/ledger"
	"github.com/avtovin/avtovin-backend/internal/pricing"
	"github.com/avtovin/avtovin-backend/pkg/config"
	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/metrics"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

// EventVisitCreated is emitted to the car owner after a visit commits.
const EventVisitCreated = "visit:created"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type quoter interface {
	QuoteItemized(ctx context.Context, lines []pricing.ServiceLineInput) (*pricing.Quote, error)
	QuoteFlatAmount(partner *models.Partner, totalAmount int64, lineName string, details *string) (*pricing.Quote, error)
}

type notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload any)
}

// Service is the single write entry point for visits plus its read
// projections.
type Service interface {
	RecordVisit(ctx context.Context, input RecordVisitInput) (*models.Visit, error)
	GetVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error)
	ListVisits(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Visit, int64, error)
	PartnerForManager(ctx context.Context, managerID uuid.UUID) (*models.Partner, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	pricing quoter
	ledger  ledger.Service
	notify  notifier
	logg    *logger.Logger
	metrics *metrics.PlatformMetrics
	loyalty config.LoyaltyConfig
}

// NewService builds the visit recording service.
func NewService(
	repo Repository,
	tx txRunner,
	quotes quoter,
	ledgerSvc ledger.Service,
	notify notifier,
	logg *logger.Logger,
	m *metrics.PlatformMetrics,
	loyalty config.LoyaltyConfig,
) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "visits repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if quotes == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing resolver required")
	}
	if ledgerSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		pricing: quotes,
		ledger:  ledgerSvc,
		notify:  notify,
		logg:    logg,
		metrics: m,
		loyalty: loyalty,
	}, nil
}

// RecordVisit validates, prices and commits one visit atomically: the visit
// row, its lines, the ledger movements and the car odometer update all land
// in a single transaction. Notification and metrics happen after commit and
// never fail the call.
func (s *service) RecordVisit(ctx context.Context, input RecordVisitInput) (*models.Visit, error) {
	partner, err := s.resolvePartner(ctx, input)
	if err != nil {
		return nil, err
	}
	if !partner.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "partner is inactive")
	}

	car, err := s.repo.FindCarByID(ctx, input.CarID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "car not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load car")
	}
	if car.Owner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "car owner not found")
	}

	quote, err := s.quote(ctx, partner, input)
	if err != nil {
		return nil, err
	}

	if err := s.checkRedemption(car.Owner, quote, input.CashbackUsed); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	visit := &models.Visit{
		ID:           uuid.New(),
		CarID:        car.ID,
		PartnerID:    partner.ID,
		Description:  input.Description,
		Cost:         quote.TotalCost,
		Mileage:      input.Mileage,
		Cashback:     quote.TotalCashback,
		CashbackUsed: input.CashbackUsed,
		ServiceFee:   quote.TotalCommission,
		Status:       enums.VisitStatusCompleted,
	}
	for _, line := range quote.Lines {
		visit.Lines = append(visit.Lines, models.VisitServiceLine{
			ID:          uuid.New(),
			VisitID:     visit.ID,
			ServiceName: line.ServiceName,
			Price:       line.Price,
			Commission:  line.Commission,
			Cashback:    line.Cashback,
			Details:     line.Details,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.CreateVisit(ctx, visit); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create visit")
		}

		if err := s.ledger.Apply(ctx, tx, ledger.ApplyInput{
			UserID:           car.UserID,
			VisitID:          &visit.ID,
			Earn:             quote.TotalCashback,
			Spend:            input.CashbackUsed,
			EarnDescription:  fmt.Sprintf("Cashback for visit at %s", partner.Name),
			SpendDescription: fmt.Sprintf("Cashback redeemed at %s", partner.Name),
		}); err != nil {
			return err
		}

		// mileage is overwritten as supplied; a lower reading may be an
		// intentional correction
		if err := repo.UpdateCarAfterVisit(ctx, car.ID, input.Mileage, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update car after visit")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveVisit(string(partner.Type), quote.TotalCashback, input.CashbackUsed)

	logCtx := s.logg.WithVisitID(ctx, visit.ID.String())
	logCtx = s.logg.WithPartnerID(logCtx, partner.ID.String())
	logCtx = s.logg.WithUserID(logCtx, car.UserID.String())
	s.logg.Info(logCtx, "visit recorded")

	if s.notify != nil {
		s.notify.Notify(ctx, car.UserID, EventVisitCreated, VisitCreatedEvent{
			VisitID:      visit.ID,
			CarName:      car.Brand + " " + car.Model,
			PartnerName:  partner.Name,
			PartnerType:  partner.Type,
			Description:  input.Description,
			Mileage:      input.Mileage,
			Cost:         quote.TotalCost,
			Cashback:     quote.TotalCashback,
			CashbackUsed: input.CashbackUsed,
		})
	}

	return visit, nil
}

func (s *service) resolvePartner(ctx context.Context, input RecordVisitInput) (*models.Partner, error) {
	switch input.ActorRole {
	case enums.RolePartnerManager:
		partner, err := s.repo.FindPartnerByManagerID(ctx, input.ActorUserID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no partner assigned to manager")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load partner for manager")
		}
		return partner, nil
	case enums.RoleAdmin:
		if input.PartnerID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id is required")
		}
		partner, err := s.repo.FindPartnerByID(ctx, *input.PartnerID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "partner not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load partner")
		}
		return partner, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role may not record visits")
	}
}

func (s *service) quote(ctx context.Context, partner *models.Partner, input RecordVisitInput) (*pricing.Quote, error) {
	mode := pricing.ModeFor(partner.Type, len(input.Services) > 0)
	if mode == pricing.ModeItemized {
		lines := make([]pricing.ServiceLineInput, 0, len(input.Services))
		for _, svc := range input.Services {
			lines = append(lines, pricing.ServiceLineInput{
				ServiceID: svc.ServiceID,
				Price:     svc.Price,
				Details:   svc.Details,
			})
		}
		return s.pricing.QuoteItemized(ctx, lines)
	}

	if input.TotalAmount == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total amount is required")
	}
	lineName := input.Description
	if lineName == "" {
		lineName = "Purchase"
	}
	return s.pricing.QuoteFlatAmount(partner, *input.TotalAmount, lineName, nil)
}

// checkRedemption enforces the redemption cap and the balance pre-check. The
// cap boundary is inclusive; the guarded ledger update re-checks the balance
// at commit time.
func (s *service) checkRedemption(owner *models.User, quote *pricing.Quote, cashbackUsed int64) error {
	if cashbackUsed < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cashback used must be non-negative")
	}
	if cashbackUsed == 0 {
		return nil
	}

	capAmount := quote.TotalCost * int64(s.loyalty.RedemptionCapPercent) / 100
	if cashbackUsed > capAmount {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "cashback exceeds redemption cap").
			WithDetails(map[string]any{"cap": capAmount, "requested": cashbackUsed})
	}
	if owner.Balance < cashbackUsed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient balance").
			WithDetails(map[string]any{"balance": owner.Balance, "requested": cashbackUsed})
	}
	return nil
}

func (s *service) GetVisit(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	visit, err := s.repo.FindVisitByID(ctx, id)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "visit not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load visit")
	}
	return visit, nil
}

func (s *service) ListVisits(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Visit, int64, error) {
	rows, total, err := s.repo.ListVisits(ctx, filter, page)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list visits")
	}
	return rows, total, nil
}

func (s *service) PartnerForManager(ctx context.Context, managerID uuid.UUID) (*models.Partner, error) {
	partner, err := s.repo.FindPartnerByManagerID(ctx, managerID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no partner assigned to manager")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load partner for manager")
	}
	return partner, nil
}
