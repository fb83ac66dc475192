package ledger

import (
	"context"
	stdErrors "errors"
	"fmt"

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

// ApplyInput records the cashback movements of one visit against a user's
// balance. Earn and Spend are both non-negative; either may be zero.
type ApplyInput struct {
	UserID           uuid.UUID
	VisitID          *uuid.UUID
	Earn             int64
	Spend            int64
	EarnDescription  string
	SpendDescription string
}

// Statement is the account-statement projection for one user.
type Statement struct {
	User         *models.User
	Transactions []models.BalanceTransaction
	Total        int64
	Page         pagination.Page
}

// ReconcileResult reports a balance recomputation from the transaction log.
type ReconcileResult struct {
	UserID         uuid.UUID `json:"user_id"`
	StoredBalance  int64     `json:"stored_balance"`
	LedgerBalance  int64     `json:"ledger_balance"`
	Drift          int64     `json:"drift"`
	BalanceUpdated bool      `json:"balance_updated"`
}

// Service owns the append-only cashback ledger and the materialized balance.
type Service interface {
	Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) error
	Statement(ctx context.Context, userID uuid.UUID, page pagination.Page) (*Statement, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	logg    *logger.Logger
	metrics *metrics.PlatformMetrics
}

// NewService builds the ledger service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, m *metrics.PlatformMetrics) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg, metrics: m}, nil
}

// Apply appends the visit's ledger rows and moves the materialized balance by
// their net amount in one guarded update. It must run inside the same
// database transaction that creates the visit; pass that tx in.
func (s *service) Apply(ctx context.Context, tx *gorm.DB, input ApplyInput) error {
	if input.Earn < 0 || input.Spend < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger amounts must be non-negative")
	}
	if input.Earn == 0 && input.Spend == 0 {
		return nil
	}

	repo := s.repo.WithTx(tx)

	var rows []models.BalanceTransaction
	if input.Earn > 0 {
		rows = append(rows, models.BalanceTransaction{
			ID:          uuid.New(),
			UserID:      input.UserID,
			Amount:      input.Earn,
			Type:        enums.BalanceTransactionTypeCashbackEarn,
			Description: input.EarnDescription,
			VisitID:     input.VisitID,
		})
	}
	if input.Spend > 0 {
		rows = append(rows, models.BalanceTransaction{
			ID:          uuid.New(),
			UserID:      input.UserID,
			Amount:      -input.Spend,
			Type:        enums.BalanceTransactionTypeCashbackSpend,
			Description: input.SpendDescription,
			VisitID:     input.VisitID,
		})
	}
	if err := repo.AppendTransactions(ctx, rows); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append balance transactions")
	}

	ok, err := repo.ApplyBalanceDelta(ctx, input.UserID, input.Earn-input.Spend, input.Spend)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user balance")
	}
	if !ok {
		s.metrics.ObserveBalanceConflict()
		s.logg.Warn(s.logg.WithUserID(ctx, input.UserID.String()), "balance moved during commit, aborting")
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient balance").
			WithDetails(map[string]any{"user_id": input.UserID})
	}
	return nil
}

func (s *service) Statement(ctx context.Context, userID uuid.UUID, page pagination.Page) (*Statement, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	rows, total, err := s.repo.ListTransactions(ctx, userID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list balance transactions")
	}
	return &Statement{User: user, Transactions: rows, Total: total, Page: page}, nil
}

// Reconcile recomputes the materialized balance from the transaction log and
// overwrites the stored value when they disagree. Admin tooling only; the
// ledger is the source of truth.
func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileResult, error) {
	var result *ReconcileResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		user, err := repo.FindUserByID(ctx, userID)
		if err != nil {
			if stdErrors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
		}

		sum, err := repo.SumTransactions(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum balance transactions")
		}

		result = &ReconcileResult{
			UserID:        userID,
			StoredBalance: user.Balance,
			LedgerBalance: sum,
			Drift:         user.Balance - sum,
		}
		if result.Drift == 0 {
			return nil
		}

		if err := repo.SetBalance(ctx, userID, sum); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write reconciled balance")
		}
		result.BalanceUpdated = true

		ctx = s.logg.WithUserID(ctx, userID.String())
		ctx = s.logg.WithField(ctx, "drift", result.Drift)
		s.logg.Warn(ctx, fmt.Sprintf("balance drift corrected: %d -> %d", result.StoredBalance, sum))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
