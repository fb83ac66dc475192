package visits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avtovin/avtovin-backend/pkg/db/models"
	"github.com/avtovin/avtovin-backend/pkg/pagination"
)

// ListFilter narrows visit listings. Zero values mean "no constraint".
type ListFilter struct {
	CarID     *uuid.UUID
	PartnerID *uuid.UUID
	UserID    *uuid.UUID
}

// Repository persists visits and the catalog/partner/car lookups recording
// needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCarByID(ctx context.Context, id uuid.UUID) (*models.Car, error)
	FindPartnerByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
	FindPartnerByManagerID(ctx context.Context, managerID uuid.UUID) (*models.Partner, error)
	ServicesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Service, error)
	CreateVisit(ctx context.Context, visit *models.Visit) error
	UpdateCarAfterVisit(ctx context.Context, carID uuid.UUID, mileage *int, servicedAt time.Time) error
	FindVisitByID(ctx context.Context, id uuid.UUID) (*models.Visit, error)
	ListVisits(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Visit, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a visits repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCarByID(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	var car models.Car
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("id = ?", id).
		First(&car).Error
	if err != nil {
		return nil, err
	}
	return &car, nil
}

func (r *repository) FindPartnerByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&partner).Error
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) FindPartnerByManagerID(ctx context.Context, managerID uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	err := r.db.WithContext(ctx).Where("manager_id = ?", managerID).First(&partner).Error
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) ServicesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Service, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.Service{}, nil
	}
	var rows []models.Service
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]models.Service, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) CreateVisit(ctx context.Context, visit *models.Visit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

func (r *repository) UpdateCarAfterVisit(ctx context.Context, carID uuid.UUID, mileage *int, servicedAt time.Time) error {
	updates := map[string]any{"last_service_at": servicedAt}
	if mileage != nil {
		updates["mileage"] = *mileage
	}
	return r.db.WithContext(ctx).
		Model(&models.Car{}).
		Where("id = ?", carID).
		Updates(updates).Error
}

func (r *repository) FindVisitByID(ctx context.Context, id uuid.UUID) (*models.Visit, error) {
	var visit models.Visit
	err := r.db.WithContext(ctx).
		Preload("Lines").
		Preload("Car").
		Preload("Partner").
		Where("id = ?", id).
		First(&visit).Error
	if err != nil {
		return nil, err
	}
	return &visit, nil
}

func (r *repository) ListVisits(ctx context.Context, filter ListFilter, page pagination.Page) ([]models.Visit, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Visit{})
	if filter.CarID != nil {
		query = query.Where("car_id = ?", *filter.CarID)
	}
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.UserID != nil {
		query = query.Where("car_id IN (?)", r.db.Model(&models.Car{}).Select("id").Where("user_id = ?", *filter.UserID))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Visit
	err := query.
		Preload("Lines").
		Order("created_at DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
