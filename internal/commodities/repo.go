package commodities

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/internal/repo"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
)

// Repository manages persistence for commodities.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, commodity *models.Commodity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Commodity, error)
	GetByCode(ctx context.Context, code string) (*models.Commodity, error)
	List(ctx context.Context, includeInactive bool) ([]models.Commodity, error)
	Update(ctx context.Context, commodity *models.Commodity) error
}

type repository struct {
	repo.Base
}

// NewRepository returns a commodity repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, commodity *models.Commodity) error {
	if commodity.ID == uuid.Nil {
		commodity.ID = uuid.New()
	}
	return r.DB(ctx).Create(commodity).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Commodity, error) {
	var commodity models.Commodity
	err := r.DB(ctx).Where("id = ?", id).First(&commodity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commodity, nil
}

func (r *repository) GetByCode(ctx context.Context, code string) (*models.Commodity, error) {
	var commodity models.Commodity
	err := r.DB(ctx).Where("code = ?", code).First(&commodity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commodity, nil
}

func (r *repository) List(ctx context.Context, includeInactive bool) ([]models.Commodity, error) {
	q := r.DB(ctx)
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var rows []models.Commodity
	if err := q.Order("code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, commodity *models.Commodity) error {
	return r.DB(ctx).Save(commodity).Error
}
