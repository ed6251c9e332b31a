package movements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/internal/balances"
	"github.com/grainworks/grainstock-backend/internal/commodities"
	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/internal/warehouses"
	"github.com/grainworks/grainstock-backend/pkg/db"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/logger"
	"github.com/grainworks/grainstock-backend/pkg/metrics"
	"github.com/grainworks/grainstock-backend/pkg/outbox"
)

// appendRetries bounds how often a writer re-reads the key's max seq after
// losing a seq race to a writer in another process.
const appendRetries = 3

const (
	rejectionValidation        = "validation"
	rejectionUnknownReference  = "unknown_reference"
	rejectionInactiveReference = "inactive_reference"
	rejectionInsufficientStock = "insufficient_stock"
)

// RecordMovementInput is a request to append one movement to the ledger.
// Quantity is the signed delta: positive for inbound kinds, negative for
// outbound ones, either sign for adjustments.
type RecordMovementInput struct {
	WarehouseID    uuid.UUID
	CommodityID    uuid.UUID
	Kind           enums.MovementKind
	Quantity       decimal.Decimal
	Reference      *string
	IdempotencyKey string
	OccurredAt     time.Time
}

// MovementResult pairs the appended movement with the balance after it
// took effect. Replayed is true when the idempotency key matched an
// earlier movement and no new row was written.
type MovementResult struct {
	Movement *models.StockMovement
	Balance  *models.StockBalance
	Replayed bool
}

// RecordTransferInput is a request to move stock between two warehouses
// of the same commodity. Quantity is always positive.
type RecordTransferInput struct {
	SourceWarehouseID uuid.UUID
	DestWarehouseID   uuid.UUID
	CommodityID       uuid.UUID
	Quantity          decimal.Decimal
	Reference         *string
	IdempotencyKey    string
	OccurredAt        time.Time
}

// TransferResult carries both legs of a completed transfer.
type TransferResult struct {
	TransferID    uuid.UUID
	OutMovement   *models.StockMovement
	InMovement    *models.StockMovement
	SourceBalance *models.StockBalance
	DestBalance   *models.StockBalance
	Replayed      bool
}

// Service coordinates ledger appends, balance cache updates and event
// emission for stock movements.
type Service interface {
	RecordMovement(ctx context.Context, input RecordMovementInput) (*MovementResult, error)
	RecordTransfer(ctx context.Context, input RecordTransferInput) (*TransferResult, error)
}

type service struct {
	conn          *gorm.DB
	ledgerRepo    ledger.Repository
	balanceSvc    balances.Service
	commodityRepo commodities.Repository
	warehouseRepo warehouses.Repository
	box           *outbox.Service
	locks         *keyLock
	ledgerMetrics *metrics.LedgerMetrics
	logg          *logger.Logger
}

// committedAppendError marks a failure that happened after the movement
// row was durably written. The ledger entry stands; only the cached
// balance lags until a rebuild catches up.
type committedAppendError struct {
	err error
}

func (e *committedAppendError) Error() string { return e.err.Error() }
func (e *committedAppendError) Unwrap() error { return e.err }

// NewService builds the transaction coordinator.
func NewService(
	conn *gorm.DB,
	ledgerRepo ledger.Repository,
	balanceSvc balances.Service,
	commodityRepo commodities.Repository,
	warehouseRepo warehouses.Repository,
	box *outbox.Service,
	ledgerMetrics *metrics.LedgerMetrics,
	logg *logger.Logger,
) (Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("database connection required")
	}
	if ledgerRepo == nil || balanceSvc == nil || commodityRepo == nil || warehouseRepo == nil {
		return nil, fmt.Errorf("ledger, balance, commodity and warehouse dependencies required")
	}
	if box == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	return &service{
		conn:          conn,
		ledgerRepo:    ledgerRepo,
		balanceSvc:    balanceSvc,
		commodityRepo: commodityRepo,
		warehouseRepo: warehouseRepo,
		box:           box,
		locks:         newKeyLock(),
		ledgerMetrics: ledgerMetrics,
		logg:          logg,
	}, nil
}

func stockKey(warehouseID, commodityID uuid.UUID) string {
	return warehouseID.String() + "/" + commodityID.String()
}

func (s *service) RecordMovement(ctx context.Context, input RecordMovementInput) (*MovementResult, error) {
	if err := s.validateMovement(ctx, &input); err != nil {
		return nil, err
	}

	if prior, err := s.replayByIdempotencyKey(ctx, input.IdempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	key := stockKey(input.WarehouseID, input.CommodityID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	movement := &models.StockMovement{
		ID:             uuid.New(),
		WarehouseID:    input.WarehouseID,
		CommodityID:    input.CommodityID,
		Kind:           input.Kind,
		Quantity:       input.Quantity,
		Reference:      input.Reference,
		IdempotencyKey: input.IdempotencyKey,
		OccurredAt:     input.OccurredAt,
	}
	result, err := s.appendLocked(ctx, movement, enums.EventMovementRecorded)
	if err != nil {
		return nil, err
	}

	s.ledgerMetrics.IncMovement(input.Kind.String())
	return result, nil
}

func (s *service) RecordTransfer(ctx context.Context, input RecordTransferInput) (*TransferResult, error) {
	if err := s.validateTransfer(ctx, &input); err != nil {
		return nil, err
	}

	if prior, err := s.replayTransferByIdempotencyKey(ctx, input.IdempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	sourceKey := stockKey(input.SourceWarehouseID, input.CommodityID)
	destKey := stockKey(input.DestWarehouseID, input.CommodityID)
	unlock := s.locks.LockMany(sourceKey, destKey)
	defer unlock()

	transferID := uuid.New()
	outID := uuid.New()
	inID := uuid.New()

	// Once the out leg is durable the transfer must finish or be
	// compensated even if the caller goes away.
	detached := context.WithoutCancel(ctx)

	out := &models.StockMovement{
		ID:               outID,
		WarehouseID:      input.SourceWarehouseID,
		CommodityID:      input.CommodityID,
		Kind:             enums.MovementKindTransferOut,
		Quantity:         input.Quantity.Neg(),
		Reference:        input.Reference,
		TransferID:       &transferID,
		PairedMovementID: &inID,
		IdempotencyKey:   input.IdempotencyKey,
		OccurredAt:       input.OccurredAt,
	}
	outResult, err := s.appendLocked(ctx, out, enums.EventTransferRecorded)
	if err != nil {
		var committed *committedAppendError
		if errors.As(err, &committed) {
			return nil, s.failTransfer(detached, out, input.IdempotencyKey, err)
		}
		return nil, err
	}

	in := &models.StockMovement{
		ID:               inID,
		WarehouseID:      input.DestWarehouseID,
		CommodityID:      input.CommodityID,
		Kind:             enums.MovementKindTransferIn,
		Quantity:         input.Quantity,
		Reference:        input.Reference,
		TransferID:       &transferID,
		PairedMovementID: &outID,
		IdempotencyKey:   input.IdempotencyKey + ":in",
		OccurredAt:       input.OccurredAt,
	}
	inResult, err := s.appendLocked(detached, in, enums.EventTransferRecorded)
	if err != nil {
		var committed *committedAppendError
		if errors.As(err, &committed) {
			// Both legs are durable; only the destination cache lags.
			// Reversing here would mint stock, so surface the error and
			// let a retry replay the completed pair.
			return nil, err
		}
		return nil, s.failTransfer(detached, outResult.Movement, input.IdempotencyKey, err)
	}

	s.ledgerMetrics.IncMovement(enums.MovementKindTransferOut.String())
	s.ledgerMetrics.IncMovement(enums.MovementKindTransferIn.String())

	return &TransferResult{
		TransferID:    transferID,
		OutMovement:   outResult.Movement,
		InMovement:    inResult.Movement,
		SourceBalance: outResult.Balance,
		DestBalance:   inResult.Balance,
	}, nil
}

// failTransfer compensates a committed out leg and reports the transfer
// as failed with the original cause.
func (s *service) failTransfer(ctx context.Context, out *models.StockMovement, idempotencyKey string, cause error) error {
	if revErr := s.reverseOutLeg(ctx, out, idempotencyKey); revErr != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "transfer reversal failed", revErr)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, revErr, "transfer failed and reversal did not restore source stock")
	}
	return cause
}

// reverseOutLeg compensates an already committed out leg after the in leg
// could not be written. The reversal is an ordinary adjustment movement so
// the source ledger stays append only.
func (s *service) reverseOutLeg(ctx context.Context, out *models.StockMovement, idempotencyKey string) error {
	outID := out.ID
	reference := fmt.Sprintf("reversal of transfer %s", out.TransferID)
	reversal := &models.StockMovement{
		ID:               uuid.New(),
		WarehouseID:      out.WarehouseID,
		CommodityID:      out.CommodityID,
		Kind:             enums.MovementKindAdjustment,
		Quantity:         out.Quantity.Neg(),
		Reference:        &reference,
		TransferID:       out.TransferID,
		PairedMovementID: &outID,
		IdempotencyKey:   idempotencyKey + ":reversal",
		OccurredAt:       time.Now(),
	}
	_, err := s.appendLocked(ctx, reversal, enums.EventTransferReversed)
	return err
}

// appendLocked writes one movement and folds it into the balance cache.
// The caller must hold the key lock. The append and the outbox event
// commit in one transaction; a failed cache apply afterwards triggers a
// rebuild and only surfaces, marked committed, when the rebuild itself
// fails.
func (s *service) appendLocked(ctx context.Context, movement *models.StockMovement, eventType enums.OutboxEventType) (*MovementResult, error) {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		result, err := s.tryAppend(ctx, movement, eventType)
		if err == nil {
			return result, nil
		}
		if db.IsUniqueViolation(err, "ux_stock_movements_key_seq", "stock_movements.seq") {
			lastErr = err
			continue
		}
		if db.IsUniqueViolation(err, "ux_stock_movements_idem_key", "stock_movements.idempotency_key") {
			prior, replayErr := s.replayByIdempotencyKey(ctx, movement.IdempotencyKey)
			if replayErr != nil {
				return nil, replayErr
			}
			if prior != nil {
				return prior, nil
			}
		}
		return nil, err
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lastErr, "db: ledger append kept losing seq races")
}

func (s *service) tryAppend(ctx context.Context, movement *models.StockMovement, eventType enums.OutboxEventType) (*MovementResult, error) {
	maxSeq, err := s.ledgerRepo.MaxSeq(ctx, movement.WarehouseID, movement.CommodityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read ledger watermark")
	}
	movement.Seq = maxSeq + 1

	if movement.Quantity.IsNegative() {
		available, err := s.availableQuantity(ctx, movement.WarehouseID, movement.CommodityID, maxSeq)
		if err != nil {
			return nil, err
		}
		projected := available.Add(movement.Quantity)
		if projected.IsNegative() {
			s.ledgerMetrics.IncRejection(rejectionInsufficientStock)
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for movement").
				WithDetails(map[string]string{
					"available": available.String(),
					"requested": movement.Quantity.Neg().String(),
				})
		}
	}

	err = s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledgerRepo.WithTx(tx).Append(ctx, movement); err != nil {
			return err
		}
		if err := s.box.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateMovement,
			AggregateID:   movement.ID,
			Data:          movementEventData(movement),
			Version:       1,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: queue movement event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	balance, err := s.applyWithRebuild(ctx, movement)
	if err != nil {
		return nil, &committedAppendError{err: err}
	}

	if s.logg != nil {
		logCtx := s.logg.WithStockKey(ctx, movement.WarehouseID.String(), movement.CommodityID.String())
		logCtx = s.logg.WithMovementID(logCtx, movement.ID.String())
		s.logg.Info(logCtx, "movement recorded")
	}
	return &MovementResult{Movement: movement, Balance: balance}, nil
}

// availableQuantity prefers the cached balance when its watermark matches
// the ledger and falls back to a full replay otherwise.
func (s *service) availableQuantity(ctx context.Context, warehouseID, commodityID uuid.UUID, maxSeq int64) (decimal.Decimal, error) {
	balance, err := s.balanceSvc.Read(ctx, warehouseID, commodityID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read balance")
	}
	if balance.LastSeq == maxSeq {
		return balance.Quantity, nil
	}
	totals, err := s.ledgerRepo.Replay(ctx, warehouseID, commodityID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: replay ledger")
	}
	return totals.Quantity, nil
}

func (s *service) applyWithRebuild(ctx context.Context, movement *models.StockMovement) (*models.StockBalance, error) {
	var balance *models.StockBalance
	err := s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var applyErr error
		balance, applyErr = s.balanceSvc.Apply(ctx, tx, movement)
		return applyErr
	})
	if err == nil {
		return balance, nil
	}

	if s.logg != nil {
		logCtx := s.logg.WithStockKey(ctx, movement.WarehouseID.String(), movement.CommodityID.String())
		s.logg.Warn(logCtx, "balance apply failed, rebuilding from ledger")
	}
	if !errors.Is(err, balances.ErrCacheStale) && s.logg != nil {
		s.logg.Error(ctx, "balance apply error", err)
	}

	rebuilt, rebuildErr := s.balanceSvc.Rebuild(ctx, movement.WarehouseID, movement.CommodityID)
	if rebuildErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, rebuildErr, "balance cache diverged and rebuild failed")
	}
	return rebuilt, nil
}

func movementEventData(movement *models.StockMovement) map[string]any {
	data := map[string]any{
		"movement_id":  movement.ID.String(),
		"warehouse_id": movement.WarehouseID.String(),
		"commodity_id": movement.CommodityID.String(),
		"seq":          movement.Seq,
		"kind":         movement.Kind.String(),
		"quantity":     movement.Quantity.String(),
		"occurred_at":  movement.OccurredAt,
	}
	if movement.TransferID != nil {
		data["transfer_id"] = movement.TransferID.String()
	}
	return data
}

func (s *service) replayByIdempotencyKey(ctx context.Context, key string) (*MovementResult, error) {
	existing, err := s.ledgerRepo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: look up idempotency key")
	}
	if existing == nil {
		return nil, nil
	}
	balance, err := s.balanceSvc.Read(ctx, existing.WarehouseID, existing.CommodityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read balance")
	}
	return &MovementResult{Movement: existing, Balance: balance, Replayed: true}, nil
}

func (s *service) replayTransferByIdempotencyKey(ctx context.Context, key string) (*TransferResult, error) {
	prior, err := s.replayByIdempotencyKey(ctx, key)
	if err != nil || prior == nil {
		return nil, err
	}
	out := prior.Movement
	if out.TransferID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key was used for a non-transfer movement")
	}

	legs, err := s.ledgerRepo.ListByTransferID(ctx, *out.TransferID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load transfer legs")
	}
	result := &TransferResult{TransferID: *out.TransferID, Replayed: true}
	for i := range legs {
		leg := legs[i]
		switch leg.Kind {
		case enums.MovementKindTransferOut:
			result.OutMovement = &leg
		case enums.MovementKindTransferIn:
			result.InMovement = &leg
		}
	}
	if result.OutMovement == nil || result.InMovement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transfer was reversed, retry with a new idempotency key")
	}

	result.SourceBalance, err = s.balanceSvc.Read(ctx, result.OutMovement.WarehouseID, result.OutMovement.CommodityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read balance")
	}
	result.DestBalance, err = s.balanceSvc.Read(ctx, result.InMovement.WarehouseID, result.InMovement.CommodityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read balance")
	}
	return result, nil
}

func (s *service) validateMovement(ctx context.Context, input *RecordMovementInput) error {
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		s.ledgerMetrics.IncRejection(rejectionValidation)
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if !input.Kind.IsValid() {
		s.ledgerMetrics.IncRejection(rejectionValidation)
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown movement kind %q", input.Kind))
	}
	if input.Quantity.IsZero() {
		s.ledgerMetrics.IncRejection(rejectionValidation)
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be nonzero")
	}
	if input.Kind.IsInbound() && !input.Quantity.IsPositive() {
		s.ledgerMetrics.IncRejection(rejectionValidation)
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s movements require a positive quantity", input.Kind))
	}
	if input.Kind.IsOutbound() && !input.Quantity.IsNegative() {
		s.ledgerMetrics.IncRejection(rejectionValidation)
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s movements require a negative quantity", input.Kind))
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = time.Now()
	}
	if err := s.checkWarehouse(ctx, input.WarehouseID); err != nil {
		return err
	}
	return s.checkCommodity(ctx, input.CommodityID)
}

func (s *service) validateTransfer(ctx context.Context, input *RecordTransferInput) error {
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		s.ledgerMetrics.IncRejection(rejectionValidation)
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if !input.Quantity.IsPositive() {
		s.ledgerMetrics.IncRejection(rejectionValidation)
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer quantity must be positive")
	}
	if input.SourceWarehouseID == input.DestWarehouseID {
		s.ledgerMetrics.IncRejection(rejectionValidation)
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer source and destination must differ")
	}
	if input.OccurredAt.IsZero() {
		input.OccurredAt = time.Now()
	}
	if err := s.checkWarehouse(ctx, input.SourceWarehouseID); err != nil {
		return err
	}
	if err := s.checkWarehouse(ctx, input.DestWarehouseID); err != nil {
		return err
	}
	return s.checkCommodity(ctx, input.CommodityID)
}

func (s *service) checkWarehouse(ctx context.Context, id uuid.UUID) error {
	warehouse, err := s.warehouseRepo.GetByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load warehouse")
	}
	if warehouse == nil {
		s.ledgerMetrics.IncRejection(rejectionUnknownReference)
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown warehouse %s", id))
	}
	if !warehouse.IsActive {
		s.ledgerMetrics.IncRejection(rejectionInactiveReference)
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("warehouse %s is retired", warehouse.Code))
	}
	return nil
}

func (s *service) checkCommodity(ctx context.Context, id uuid.UUID) error {
	commodity, err := s.commodityRepo.GetByID(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load commodity")
	}
	if commodity == nil {
		s.ledgerMetrics.IncRejection(rejectionUnknownReference)
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown commodity %s", id))
	}
	if !commodity.IsActive {
		s.ledgerMetrics.IncRejection(rejectionInactiveReference)
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("commodity %s is retired", commodity.Code))
	}
	return nil
}
