package settlements

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/enums"
	pkgerrors "github.com/avtovin/avtovin-backend/pkg/errors"
	"github.com/avtovin/avtovin-backend/pkg/logger"
	"github.com/avtovin/avtovin-backend/pkg/metrics"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// UpdateInput carries the operator-editable settlement fields. Nil means
// "leave unchanged".
type UpdateInput struct {
	IsPaid        *bool
	ReceiptStatus *enums.ReceiptStatus
	ReceiptURL    *string
}

// SubmitReceiptInput attaches a payment receipt on behalf of a partner
// manager. SettlementID nil targets every unpaid settlement awaiting a
// receipt, creating one from the current month's unsettled visits when the
// partner has no unpaid settlement at all.
type SubmitReceiptInput struct {
	ManagerID    uuid.UUID
	SettlementID *uuid.UUID
	ReceiptURL   string
}

// PartnerFinances is the money view a partner manager sees.
type PartnerFinances struct {
	Partner             *models.Partner
	Settlements         []models.Settlement
	TotalOwed           int64
	TotalPaid           int64
	UnsettledCommission int64
	UnsettledVisits     int64
}

// Service owns settlement batching, the receipt workflow and the partner
// finance projection.
type Service interface {
	CreateBatch(ctx context.Context, periodStart, periodEnd time.Time) ([]models.Settlement, error)
	GetSettlement(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	ListSettlements(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Settlement, int64, error)
	UpdateSettlement(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Settlement, error)
	DeleteSettlement(ctx context.Context, id uuid.UUID) error
	PartnerFinances(ctx context.Context, managerID uuid.UUID) (*PartnerFinances, error)
	SubmitReceipt(ctx context.Context, input SubmitReceiptInput) ([]models.Settlement, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	lock    RunLock
	logg    *logger.Logger
	metrics *metrics.PlatformMetrics
}

// NewService builds the settlements service. The lock is optional; without
// it overlapping batch runs are only guarded by the visit stamps.
func NewService(repo Repository, tx txRunner, lock RunLock, logg *logger.Logger, m *metrics.PlatformMetrics) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlements repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, tx: tx, lock: lock, logg: logg, metrics: m}, nil
}

// CreateBatch settles every partner's unsettled visits inside the period:
// one settlement per partner with at least one visit, created and stamped in
// a single transaction so a re-run over the same period produces nothing.
func (s *service) CreateBatch(ctx context.Context, periodStart, periodEnd time.Time) ([]models.Settlement, error) {
	if !periodStart.Before(periodEnd) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period start must precede period end")
	}

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire settlement run lock")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "settlement batch already running")
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				s.logg.Error(ctx, "release settlement run lock", err)
			}
		}()
	}

	var created []models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		totals, err := repo.UnsettledTotalsByPartner(ctx, periodStart, periodEnd)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate unsettled visits")
		}

		for _, t := range totals {
			if t.VisitCount == 0 {
				continue
			}
			settlement := models.Settlement{
				ID:                    uuid.New(),
				PartnerID:             t.PartnerID,
				PeriodStart:           periodStart,
				PeriodEnd:             periodEnd,
				TotalCommission:       t.TotalCommission,
				TotalCashbackRedeemed: t.TotalCashbackRedeemed,
				NetAmount:             t.TotalCommission,
				IsPaid:                false,
				ReceiptStatus:         enums.ReceiptStatusNone,
			}
			if err := repo.CreateSettlement(ctx, &settlement); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create settlement")
			}
			stamped, err := repo.StampVisits(ctx, t.PartnerID, periodStart, periodEnd, settlement.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stamp settled visits")
			}
			if stamped != t.VisitCount {
				return pkgerrors.New(pkgerrors.CodeConflict, "unsettled visits changed during batch")
			}
			created = append(created, settlement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveSettlements(len(created))
	s.logg.Info(s.logg.WithField(ctx, "settlements", len(created)), "settlement batch completed")
	return created, nil
}

func (s *service) GetSettlement(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	settlement, err := s.repo.FindSettlementByID(ctx, id)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settlement")
	}
	return settlement, nil
}

func (s *service) ListSettlements(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Settlement, int64, error) {
	rows, total, err := s.repo.ListSettlements(ctx, filter, page)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list settlements")
	}
	return rows, total, nil
}

// UpdateSettlement applies the operator edits. Approving a receipt marks the
// settlement paid in the same update; marking paid is refused while a receipt
// is under review.
func (s *service) UpdateSettlement(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Settlement, error) {
	if input.IsPaid == nil && input.ReceiptStatus == nil && input.ReceiptURL == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no settlement fields to update")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindSettlementByID(ctx, id)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settlement")
		}

		updates := map[string]any{}
		receiptStatus := current.ReceiptStatus

		if input.ReceiptStatus != nil {
			next := *input.ReceiptStatus
			if !next.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, "unknown receipt status")
			}
			if !current.ReceiptStatus.CanTransitionTo(next) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt status transition disallowed").
					WithDetails(map[string]any{"from": current.ReceiptStatus, "to": next})
			}
			updates["receipt_status"] = next
			receiptStatus = next
			if next == enums.ReceiptStatusApproved {
				updates["is_paid"] = true
			}
		}

		if input.IsPaid != nil {
			if *input.IsPaid && receiptStatus == enums.ReceiptStatusPending {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt review pending")
			}
			if !*input.IsPaid && receiptStatus == enums.ReceiptStatusApproved {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "approved settlement stays paid")
			}
			updates["is_paid"] = *input.IsPaid
		}

		if input.ReceiptURL != nil {
			updates["receipt_url"] = *input.ReceiptURL
		}

		return repo.UpdateSettlement(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}

	return s.GetSettlement(ctx, id)
}

// DeleteSettlement removes an unpaid settlement and returns its visits to
// the unsettled pool.
func (s *service) DeleteSettlement(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindSettlementByID(ctx, id)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settlement")
		}
		if current.IsPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid settlements cannot be deleted")
		}

		if err := repo.UnstampVisits(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release settled visits")
		}
		if err := repo.DeleteSettlement(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete settlement")
		}
		return nil
	})
}

func (s *service) PartnerFinances(ctx context.Context, managerID uuid.UUID) (*PartnerFinances, error) {
	partner, err := s.repo.FindPartnerByManagerID(ctx, managerID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no partner assigned to manager")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load partner for manager")
	}

	rows, err := s.repo.SettlementsForPartner(ctx, partner.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list partner settlements")
	}

	finances := &PartnerFinances{Partner: partner, Settlements: rows}
	for _, row := range rows {
		if row.IsPaid {
			finances.TotalPaid += row.NetAmount
		} else {
			finances.TotalOwed += row.NetAmount
		}
	}

	unsettled, err := s.repo.UnsettledTotalsForPartner(ctx, partner.ID, time.Unix(0, 0).UTC(), time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate unsettled visits")
	}
	finances.UnsettledCommission = unsettled.TotalCommission
	finances.UnsettledVisits = unsettled.VisitCount

	return finances, nil
}

// SubmitReceipt puts settlements into receipt review. An explicit settlement
// id targets that settlement only; otherwise the receipt attaches to every
// unpaid settlement still awaiting one. When the manager has no unpaid
// settlement at all, one is cut on the spot from the current month's
// unsettled visits so the receipt has something to attach to.
func (s *service) SubmitReceipt(ctx context.Context, input SubmitReceiptInput) ([]models.Settlement, error) {
	if input.ReceiptURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt url is required")
	}

	partner, err := s.repo.FindPartnerByManagerID(ctx, input.ManagerID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "no partner assigned to manager")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load partner for manager")
	}

	var targetIDs []uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		targets, err := s.targetSettlements(ctx, repo, partner.ID, input.SettlementID)
		if err != nil {
			return err
		}

		targetIDs = targetIDs[:0]
		for i := range targets {
			settlement := &targets[i]
			if settlement.IsPaid {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement already paid")
			}
			if !settlement.ReceiptStatus.CanTransitionTo(enums.ReceiptStatusPending) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "receipt already submitted").
					WithDetails(map[string]any{"status": settlement.ReceiptStatus})
			}
			if err := repo.UpdateSettlement(ctx, settlement.ID, map[string]any{
				"receipt_url":    input.ReceiptURL,
				"receipt_status": enums.ReceiptStatusPending,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "attach receipt")
			}
			targetIDs = append(targetIDs, settlement.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated := make([]models.Settlement, 0, len(targetIDs))
	for _, id := range targetIDs {
		settlement, err := s.GetSettlement(ctx, id)
		if err != nil {
			return nil, err
		}
		updated = append(updated, *settlement)
	}
	return updated, nil
}

// targetSettlements resolves which settlements a receipt applies to: the
// explicit one, every unpaid one still awaiting a receipt, or a fresh
// settlement cut from the current month's unsettled visits.
func (s *service) targetSettlements(ctx context.Context, repo Repository, partnerID uuid.UUID, explicit *uuid.UUID) ([]models.Settlement, error) {
	if explicit != nil {
		settlement, err := repo.FindSettlementByID(ctx, *explicit)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load settlement")
		}
		if settlement.PartnerID != partnerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "settlement belongs to another partner")
		}
		return []models.Settlement{*settlement}, nil
	}

	unpaid, err := repo.UnpaidSettlements(ctx, partnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load unpaid settlements")
	}
	if len(unpaid) > 0 {
		eligible := unpaid[:0]
		for _, settlement := range unpaid {
			if settlement.ReceiptStatus.CanTransitionTo(enums.ReceiptStatusPending) {
				eligible = append(eligible, settlement)
			}
		}
		if len(eligible) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "receipt already submitted").
				WithDetails(map[string]any{"status": unpaid[0].ReceiptStatus})
		}
		return eligible, nil
	}

	// no open settlement: cut one from the current month's visits
	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	totals, err := repo.UnsettledTotalsForPartner(ctx, partnerID, periodStart, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate unsettled visits")
	}
	if totals.VisitCount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "nothing to settle")
	}

	settlement := &models.Settlement{
		ID:                    uuid.New(),
		PartnerID:             partnerID,
		PeriodStart:           periodStart,
		PeriodEnd:             now,
		TotalCommission:       totals.TotalCommission,
		TotalCashbackRedeemed: totals.TotalCashbackRedeemed,
		NetAmount:             totals.TotalCommission,
		IsPaid:                false,
		ReceiptStatus:         enums.ReceiptStatusNone,
	}
	if err := repo.CreateSettlement(ctx, settlement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create settlement")
	}
	if _, err := repo.StampVisits(ctx, partnerID, periodStart, now, settlement.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stamp settled visits")
	}
	return []models.Settlement{*settlement}, nil
}
