package commodities

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/pkg/db"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/outbox"
)

// Service exposes commodity administration operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Commodity, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Commodity, error)
	List(ctx context.Context, includeInactive bool) ([]models.Commodity, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Commodity, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Commodity, error)
}

// CreateInput holds the validated payload to register a commodity.
type CreateInput struct {
	Code        string
	Name        string
	Unit        enums.CommodityUnit
	Description *string
}

// UpdateInput holds optional mutation values. Code and unit are immutable so
// historical movements keep their meaning.
type UpdateInput struct {
	Name        *string
	Description *string
}

type service struct {
	conn *gorm.DB
	repo Repository
	box  *outbox.Service
}

// NewService constructs a commodity service instance.
func NewService(conn *gorm.DB, repo Repository, box *outbox.Service) (Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection required")
	}
	if repo == nil {
		return nil, fmt.Errorf("commodity repository required")
	}
	if box == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{conn: conn, repo: repo, box: box}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Commodity, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commodity code is required")
	}
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commodity name is required")
	}
	if !input.Unit.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid commodity unit %q", input.Unit))
	}

	commodity := &models.Commodity{
		Code:        code,
		Name:        name,
		Unit:        input.Unit,
		Description: input.Description,
		IsActive:    true,
	}

	err := s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, commodity); err != nil {
			if db.IsUniqueViolation(err, "ux_commodities_code", "commodities.code") {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("commodity code %q already exists", code))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert commodity")
		}
		return s.box.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCommodityCreated,
			AggregateType: enums.AggregateCommodity,
			AggregateID:   commodity.ID,
			Data:          commodityEventData(commodity),
			Version:       1,
		})
	})
	if err != nil {
		return nil, err
	}
	return commodity, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Commodity, error) {
	commodity, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load commodity")
	}
	if commodity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commodity not found")
	}
	return commodity, nil
}

func (s *service) List(ctx context.Context, includeInactive bool) ([]models.Commodity, error) {
	rows, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list commodities")
	}
	return rows, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Commodity, error) {
	commodity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "commodity name cannot be blank")
		}
		commodity.Name = name
	}
	if input.Description != nil {
		commodity.Description = input.Description
	}

	if err := s.repo.Update(ctx, commodity); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update commodity")
	}
	return commodity, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Commodity, error) {
	commodity, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !commodity.IsActive {
		return commodity, nil
	}

	commodity.IsActive = false
	err = s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, commodity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: deactivate commodity")
		}
		return s.box.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCommodityRetired,
			AggregateType: enums.AggregateCommodity,
			AggregateID:   commodity.ID,
			Data:          commodityEventData(commodity),
			Version:       1,
		})
	})
	if err != nil {
		return nil, err
	}
	return commodity, nil
}

func commodityEventData(c *models.Commodity) map[string]any {
	return map[string]any{
		"id":   c.ID.String(),
		"code": c.Code,
		"name": c.Name,
		"unit": c.Unit,
	}
}
