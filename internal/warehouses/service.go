package warehouses

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

// Service exposes warehouse administration operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Warehouse, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
	List(ctx context.Context, includeInactive bool) ([]models.Warehouse, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Warehouse, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
}

// CreateInput holds the validated payload to register a warehouse.
type CreateInput struct {
	Code    string
	Name    string
	Region  *string
	Address *string
}

// UpdateInput holds optional mutation values. Code is immutable so historical
// movements keep their meaning.
type UpdateInput struct {
	Name    *string
	Region  *string
	Address *string
}

type service struct {
	conn *gorm.DB
	repo Repository
	box  *outbox.Service
}

// NewService constructs a warehouse service instance.
func NewService(conn *gorm.DB, repo Repository, box *outbox.Service) (Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection required")
	}
	if repo == nil {
		return nil, fmt.Errorf("warehouse repository required")
	}
	if box == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{conn: conn, repo: repo, box: box}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Warehouse, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse code is required")
	}
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse name is required")
	}

	warehouse := &models.Warehouse{
		Code:     code,
		Name:     name,
		Region:   input.Region,
		Address:  input.Address,
		IsActive: true,
	}

	err := s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, warehouse); err != nil {
			if db.IsUniqueViolation(err, "ux_warehouses_code", "warehouses.code") {
				return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("warehouse code %q already exists", code))
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert warehouse")
		}
		return s.box.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWarehouseCreated,
			AggregateType: enums.AggregateWarehouse,
			AggregateID:   warehouse.ID,
			Data:          warehouseEventData(warehouse),
			Version:       1,
		})
	})
	if err != nil {
		return nil, err
	}
	return warehouse, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	warehouse, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load warehouse")
	}
	if warehouse == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "warehouse not found")
	}
	return warehouse, nil
}

func (s *service) List(ctx context.Context, includeInactive bool) ([]models.Warehouse, error) {
	rows, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list warehouses")
	}
	return rows, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Warehouse, error) {
	warehouse, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse name cannot be blank")
		}
		warehouse.Name = name
	}
	if input.Region != nil {
		warehouse.Region = input.Region
	}
	if input.Address != nil {
		warehouse.Address = input.Address
	}

	if err := s.repo.Update(ctx, warehouse); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update warehouse")
	}
	return warehouse, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	warehouse, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !warehouse.IsActive {
		return warehouse, nil
	}

	warehouse.IsActive = false
	err = s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, warehouse); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: deactivate warehouse")
		}
		return s.box.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWarehouseRetired,
			AggregateType: enums.AggregateWarehouse,
			AggregateID:   warehouse.ID,
			Data:          warehouseEventData(warehouse),
			Version:       1,
		})
	})
	if err != nil {
		return nil, err
	}
	return warehouse, nil
}

func warehouseEventData(w *models.Warehouse) map[string]any {
	return map[string]any{
		"id":   w.ID.String(),
		"code": w.Code,
		"name": w.Name,
	}
}
