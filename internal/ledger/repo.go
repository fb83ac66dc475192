package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

// Repository persists balance transactions and the materialized user balance.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AppendTransactions(ctx context.Context, rows []models.BalanceTransaction) error
	ApplyBalanceDelta(ctx context.Context, userID uuid.UUID, delta, spend int64) (bool, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Page) ([]models.BalanceTransaction, int64, error)
	SumTransactions(ctx context.Context, userID uuid.UUID) (int64, error)
	SetBalance(ctx context.Context, userID uuid.UUID, balance int64) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) AppendTransactions(ctx context.Context, rows []models.BalanceTransaction) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ApplyBalanceDelta performs a single guarded update of the materialized
// balance. The spend must be covered by the balance at commit time, not just
// by the net delta, so a visit cannot redeem cashback its own earn would
// front. A miss (false, nil) means the balance moved and the enclosing
// transaction must abort.
func (r *repository) ApplyBalanceDelta(ctx context.Context, userID uuid.UUID, delta, spend int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND balance >= ? AND balance + ? >= 0", userID, spend, delta).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Page) ([]models.BalanceTransaction, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.BalanceTransaction{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.BalanceTransaction
	err := query.
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) SumTransactions(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.BalanceTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *repository) SetBalance(ctx context.Context, userID uuid.UUID, balance int64) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", balance).Error
}
