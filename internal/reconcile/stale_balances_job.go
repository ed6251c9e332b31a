package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/grainworks/grainstock-backend/internal/balances"
	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/pkg/enums"
	"github.com/grainworks/grainstock-backend/pkg/logger"
	"github.com/grainworks/grainstock-backend/pkg/metrics"
	"github.com/grainworks/grainstock-backend/pkg/outbox"
)

const defaultRebuildBatch = 100

// StaleBalancesJobParams configure the stale balance sweep.
type StaleBalancesJobParams struct {
	Logger      *logger.Logger
	DB          *gorm.DB
	LedgerRepo  ledger.Repository
	BalanceRepo balances.Repository
	BalanceSvc  balances.Service
	Outbox      *outbox.Service
	Metrics     *metrics.LedgerMetrics
	BatchSize   int
}

// NewStaleBalancesJob builds the job that sweeps the balance cache for
// rows lagging the ledger and rebuilds them by replay.
func NewStaleBalancesJob(params StaleBalancesJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db connection required")
	}
	if params.LedgerRepo == nil || params.BalanceRepo == nil || params.BalanceSvc == nil {
		return nil, fmt.Errorf("ledger and balance dependencies required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRebuildBatch
	}
	return &staleBalancesJob{
		logg:        params.Logger,
		db:          params.DB,
		ledgerRepo:  params.LedgerRepo,
		balanceRepo: params.BalanceRepo,
		balanceSvc:  params.BalanceSvc,
		box:         params.Outbox,
		metrics:     params.Metrics,
		batch:       batch,
	}, nil
}

type staleBalancesJob struct {
	logg        *logger.Logger
	db          *gorm.DB
	ledgerRepo  ledger.Repository
	balanceRepo balances.Repository
	balanceSvc  balances.Service
	box         *outbox.Service
	metrics     *metrics.LedgerMetrics
	batch       int
}

func (j *staleBalancesJob) Name() string { return "stale-balances" }

type staleKey struct {
	WarehouseID uuid.UUID
	CommodityID uuid.UUID
	CachedSeq   int64
	LedgerSeq   int64
}

func (j *staleBalancesJob) Run(ctx context.Context) error {
	stale, err := j.findStaleKeys(ctx)
	if err != nil {
		return fmt.Errorf("stale balance sweep: %w", err)
	}
	j.metrics.SetStaleBalances(len(stale))

	if len(stale) == 0 {
		j.logg.Info(ctx, "balance cache matches ledger")
		return nil
	}

	if j.box != nil {
		if emitErr := j.emitStaleFound(ctx, stale); emitErr != nil {
			j.logg.Error(ctx, "failed to queue stale balances event", emitErr)
		}
	}

	rebuilt := 0
	var rebuildErrs error
	for _, key := range stale {
		if rebuilt >= j.batch {
			break
		}
		logCtx := j.logg.WithStockKey(ctx, key.WarehouseID.String(), key.CommodityID.String())
		if _, err := j.balanceSvc.Rebuild(ctx, key.WarehouseID, key.CommodityID); err != nil {
			j.logg.Error(logCtx, "balance rebuild failed", err)
			rebuildErrs = multierr.Append(rebuildErrs,
				fmt.Errorf("rebuild %s/%s: %w", key.WarehouseID, key.CommodityID, err))
			continue
		}
		rebuilt++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stale_keys": len(stale),
		"rebuilt":    rebuilt,
	})
	j.logg.Info(logCtx, "stale balance sweep complete")
	return rebuildErrs
}

// findStaleKeys compares every ledger watermark against the cached row.
// Keys with ledger history but no cached row count as stale with seq 0.
func (j *staleBalancesJob) findStaleKeys(ctx context.Context) ([]staleKey, error) {
	watermarks, err := j.ledgerRepo.KeyWatermarks(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := j.balanceRepo.All(ctx)
	if err != nil {
		return nil, err
	}

	cachedSeqs := make(map[string]int64, len(cached))
	for _, row := range cached {
		cachedSeqs[row.WarehouseID.String()+"/"+row.CommodityID.String()] = row.LastSeq
	}

	var stale []staleKey
	for _, wm := range watermarks {
		cachedSeq := cachedSeqs[wm.WarehouseID.String()+"/"+wm.CommodityID.String()]
		if cachedSeq == wm.MaxSeq {
			continue
		}
		stale = append(stale, staleKey{
			WarehouseID: wm.WarehouseID,
			CommodityID: wm.CommodityID,
			CachedSeq:   cachedSeq,
			LedgerSeq:   wm.MaxSeq,
		})
	}
	return stale, nil
}

func (j *staleBalancesJob) emitStaleFound(ctx context.Context, stale []staleKey) error {
	keys := make([]map[string]any, 0, len(stale))
	for _, key := range stale {
		keys = append(keys, map[string]any{
			"warehouse_id": key.WarehouseID.String(),
			"commodity_id": key.CommodityID.String(),
			"cached_seq":   key.CachedSeq,
			"ledger_seq":   key.LedgerSeq,
		})
	}
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return j.box.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStaleBalancesFound,
			AggregateType: enums.AggregateBalance,
			AggregateID:   uuid.New(),
			Data: map[string]any{
				"count": len(stale),
				"keys":  keys,
			},
			Version: 1,
		})
	})
}
