package warehouses

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

	dsn := fmt.Sprintf("file:warehouses_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(&models.Warehouse{}, &models.OutboxEvent{}))

	box := outbox.NewService(outbox.NewRepository(conn), nil)

	svc, err := NewService(conn, NewRepository(conn), box)
	require.NoError(t, err)
	return svc, conn
}

func TestCreateAndGet(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	region := "North"
	created, err := svc.Create(ctx, CreateInput{Code: "WH-NORTH-1", Name: "Northern Depot", Region: &region})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.True(t, created.IsActive)

	loaded, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "WH-NORTH-1", loaded.Code)
	require.NotNil(t, loaded.Region)
	require.Equal(t, "North", *loaded.Region)

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventWarehouseCreated).
		Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Code: "WH-1", Name: "Depot One"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{Code: "WH-1", Name: "Depot Two"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{Code: "", Name: "No Code"})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestUpdateMutatesFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Code: "WH-2", Name: "River Depot"})
	require.NoError(t, err)

	name := "Riverside Depot"
	address := "12 Mill Road"
	updated, err := svc.Update(ctx, created.ID, UpdateInput{Name: &name, Address: &address})
	require.NoError(t, err)
	require.Equal(t, "Riverside Depot", updated.Name)
	require.NotNil(t, updated.Address)
	require.Equal(t, address, *updated.Address)
	require.Equal(t, "WH-2", updated.Code)
}

func TestDeactivateIsIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Code: "WH-3", Name: "Old Depot"})
	require.NoError(t, err)

	first, err := svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, first.IsActive)

	second, err := svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, second.IsActive)

	var retired int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventWarehouseRetired).
		Count(&retired).Error)
	require.EqualValues(t, 1, retired)

	active, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Empty(t, active)
}
