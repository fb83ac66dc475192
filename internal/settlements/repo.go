package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

// PartnerPeriodTotals aggregates a partner's unsettled visits in a period.
type PartnerPeriodTotals struct {
	PartnerID             uuid.UUID
	VisitCount            int64
	TotalCommission       int64
	TotalCashbackRedeemed int64
}

// ListFilter narrows settlement listings.
type ListFilter struct {
	PartnerID *uuid.UUID
	IsPaid    *bool
}

// Repository persists settlements and the visit aggregation feeding them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UnsettledTotalsByPartner(ctx context.Context, periodStart, periodEnd time.Time) ([]PartnerPeriodTotals, error)
	UnsettledTotalsForPartner(ctx context.Context, partnerID uuid.UUID, periodStart, periodEnd time.Time) (*PartnerPeriodTotals, error)
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error
	StampVisits(ctx context.Context, partnerID uuid.UUID, periodStart, periodEnd time.Time, settlementID uuid.UUID) (int64, error)
	UnstampVisits(ctx context.Context, settlementID uuid.UUID) error
	FindSettlementByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	ListSettlements(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Settlement, int64, error)
	UpdateSettlement(ctx context.Context, id uuid.UUID, updates map[string]any) error
	DeleteSettlement(ctx context.Context, id uuid.UUID) error
	FindPartnerByManagerID(ctx context.Context, managerID uuid.UUID) (*models.Partner, error)
	SettlementsForPartner(ctx context.Context, partnerID uuid.UUID) ([]models.Settlement, error)
	UnpaidSettlements(ctx context.Context, partnerID uuid.UUID) ([]models.Settlement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a settlements repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// unsettledScope selects visits in the closed period [start, end]. Contiguous
// periods sharing a boundary instant cannot double-count a visit: the first
// batch stamps it and the settlement_id filter hides it from the next.
func (r *repository) unsettledScope(partnerID *uuid.UUID, periodStart, periodEnd time.Time) *gorm.DB {
	query := r.db.
		Model(&models.Visit{}).
		Where("settlement_id IS NULL").
		Where("created_at >= ? AND created_at <= ?", periodStart, periodEnd)
	if partnerID != nil {
		query = query.Where("partner_id = ?", *partnerID)
	}
	return query
}

func (r *repository) UnsettledTotalsByPartner(ctx context.Context, periodStart, periodEnd time.Time) ([]PartnerPeriodTotals, error) {
	var rows []PartnerPeriodTotals
	err := r.unsettledScope(nil, periodStart, periodEnd).
		WithContext(ctx).
		Select(`partner_id,
			COUNT(*) AS visit_count,
			COALESCE(SUM(service_fee), 0) AS total_commission,
			COALESCE(SUM(cashback_used), 0) AS total_cashback_redeemed`).
		Group("partner_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UnsettledTotalsForPartner(ctx context.Context, partnerID uuid.UUID, periodStart, periodEnd time.Time) (*PartnerPeriodTotals, error) {
	var totals PartnerPeriodTotals
	err := r.unsettledScope(&partnerID, periodStart, periodEnd).
		WithContext(ctx).
		Select(`partner_id,
			COUNT(*) AS visit_count,
			COALESCE(SUM(service_fee), 0) AS total_commission,
			COALESCE(SUM(cashback_used), 0) AS total_cashback_redeemed`).
		Group("partner_id").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	totals.PartnerID = partnerID
	return &totals, nil
}

func (r *repository) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

// StampVisits links the period's unsettled visits to their settlement so no
// later batch counts them again.
func (r *repository) StampVisits(ctx context.Context, partnerID uuid.UUID, periodStart, periodEnd time.Time, settlementID uuid.UUID) (int64, error) {
	res := r.unsettledScope(&partnerID, periodStart, periodEnd).
		WithContext(ctx).
		Update("settlement_id", settlementID)
	return res.RowsAffected, res.Error
}

func (r *repository) UnstampVisits(ctx context.Context, settlementID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Visit{}).
		Where("settlement_id = ?", settlementID).
		Update("settlement_id", nil).Error
}

func (r *repository) FindSettlementByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).
		Preload("Partner").
		Where("id = ?", id).
		First(&settlement).Error
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) ListSettlements(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Settlement, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Settlement{})
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.IsPaid != nil {
		query = query.Where("is_paid = ?", *filter.IsPaid)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Settlement
	err := query.
		Preload("Partner").
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *repository) UpdateSettlement(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) DeleteSettlement(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Settlement{}).Error
}

func (r *repository) FindPartnerByManagerID(ctx context.Context, managerID uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	err := r.db.WithContext(ctx).Where("manager_id = ?", managerID).First(&partner).Error
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) SettlementsForPartner(ctx context.Context, partnerID uuid.UUID) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UnpaidSettlements(ctx context.Context, partnerID uuid.UUID) ([]models.Settlement, error) {
	var rows []models.Settlement
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND is_paid = ?", partnerID, false).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
