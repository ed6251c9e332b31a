package commodities

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/pkg/db/models"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/outbox"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:commodities_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(&models.Commodity{}, &models.OutboxEvent{}))

	box := outbox.NewService(outbox.NewRepository(conn), nil)

	svc, err := NewService(conn, NewRepository(conn), box)
	require.NoError(t, err)
	return svc, conn
}

func TestCreateAndGet(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		Code: "WHEAT",
		Name: "Hard Red Wheat",
		Unit: enums.CommodityUnitKilogram,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.True(t, created.IsActive)

	loaded, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "WHEAT", loaded.Code)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventCommodityCreated).
		Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "MAIZE", Name: "Maize", Unit: enums.CommodityUnitTonne})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Code: "MAIZE", Name: "Other Maize", Unit: enums.CommodityUnitKilogram})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, pkgerrors.CodeConflict, appErr.Code())
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "  ", Name: "Blank", Unit: enums.CommodityUnitKilogram})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = svc.Create(ctx, CreateInput{Code: "RICE", Name: "Rice", Unit: enums.CommodityUnit("barrel")})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestListFiltersInactive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	oil, err := svc.Create(ctx, CreateInput{Code: "PALM_OIL", Name: "Palm Oil", Unit: enums.CommodityUnitLiter})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Code: "SORGHUM", Name: "Sorghum", Unit: enums.CommodityUnitBag})
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, oil.ID)
	require.NoError(t, err)

	active, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "SORGHUM", active[0].Code)

	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Code: "SOY", Name: "Soybeans", Unit: enums.CommodityUnitKilogram})
	require.NoError(t, err)

	first, err := svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, first.IsActive)

	second, err := svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, second.IsActive)

	var retired int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventCommodityRetired).
		Count(&retired).Error)
	require.EqualValues(t, 1, retired)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestUpdateMutatesNameAndDescription(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Code: "MILLET", Name: "Millet", Unit: enums.CommodityUnitKilogram})
	require.NoError(t, err)

	name := "Pearl Millet"
	desc := "Rain-fed season stock"
	updated, err := svc.Update(ctx, created.ID, UpdateInput{Name: &name, Description: &desc})
	require.NoError(t, err)
	require.Equal(t, "Pearl Millet", updated.Name)
	require.NotNil(t, updated.Description)
	require.Equal(t, desc, *updated.Description)
	require.Equal(t, "MILLET", updated.Code)
}
