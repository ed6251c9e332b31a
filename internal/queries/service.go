package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grainworks/grainstock-backend/internal/balances"
	"github.com/grainworks/grainstock-backend/internal/ledger"
	"github.com/grainworks/grainstock-backend/pkg/db/models"
	pkgerrors "github.com/grainworks/grainstock-backend/pkg/errors"
	"github.com/grainworks/grainstock-backend/pkg/pagination"
)

// BalanceView is a cached balance annotated with its freshness against
// the ledger watermark.
type BalanceView struct {
	WarehouseID uuid.UUID
	CommodityID uuid.UUID
	Quantity    decimal.Decimal
	LastSeq     int64
	LedgerSeq   int64
	Stale       bool
	UpdatedAt   time.Time
}

// HistoryInput selects a slice of one key's movement history.
type HistoryInput struct {
	WarehouseID uuid.UUID
	CommodityID uuid.UUID
	From        *time.Time
	To          *time.Time
	Limit       int
	Cursor      string
}

// HistoryPage is one page of movements in ascending seq order.
type HistoryPage struct {
	Movements  []models.StockMovement
	NextCursor string
	HasMore    bool
}

// Service answers read-only balance and history queries. Reads never
// mutate the cache; staleness is reported, not repaired here.
type Service interface {
	CurrentBalance(ctx context.Context, warehouseID, commodityID uuid.UUID) (*BalanceView, error)
	WarehouseBalances(ctx context.Context, warehouseID uuid.UUID) ([]BalanceView, error)
	History(ctx context.Context, input HistoryInput) (*HistoryPage, error)
}

type service struct {
	balanceRepo balances.Repository
	ledgerRepo  ledger.Repository
}

// NewService builds the read-side query service.
func NewService(balanceRepo balances.Repository, ledgerRepo ledger.Repository) (Service, error) {
	if balanceRepo == nil || ledgerRepo == nil {
		return nil, fmt.Errorf("balance and ledger repositories required")
	}
	return &service{balanceRepo: balanceRepo, ledgerRepo: ledgerRepo}, nil
}

func (s *service) CurrentBalance(ctx context.Context, warehouseID, commodityID uuid.UUID) (*BalanceView, error) {
	balance, err := s.balanceRepo.Get(ctx, warehouseID, commodityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read balance")
	}

	maxSeq, err := s.ledgerRepo.MaxSeq(ctx, warehouseID, commodityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read ledger watermark")
	}

	view := &BalanceView{
		WarehouseID: warehouseID,
		CommodityID: commodityID,
		Quantity:    decimal.Zero,
		LedgerSeq:   maxSeq,
	}
	if balance != nil {
		view.Quantity = balance.Quantity
		view.LastSeq = balance.LastSeq
		view.UpdatedAt = balance.UpdatedAt
	}
	view.Stale = view.LastSeq != maxSeq
	return view, nil
}

func (s *service) WarehouseBalances(ctx context.Context, warehouseID uuid.UUID) ([]BalanceView, error) {
	rows, err := s.balanceRepo.ListByWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list balances")
	}

	watermarks, err := s.ledgerRepo.KeyWatermarks(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: read ledger watermarks")
	}
	ledgerSeqs := make(map[string]int64, len(watermarks))
	for _, wm := range watermarks {
		if wm.WarehouseID != warehouseID {
			continue
		}
		ledgerSeqs[wm.CommodityID.String()] = wm.MaxSeq
	}

	views := make([]BalanceView, 0, len(rows))
	for _, row := range rows {
		maxSeq := ledgerSeqs[row.CommodityID.String()]
		views = append(views, BalanceView{
			WarehouseID: row.WarehouseID,
			CommodityID: row.CommodityID,
			Quantity:    row.Quantity,
			LastSeq:     row.LastSeq,
			LedgerSeq:   maxSeq,
			Stale:       row.LastSeq != maxSeq,
			UpdatedAt:   row.UpdatedAt,
		})
		delete(ledgerSeqs, row.CommodityID.String())
	}

	// Keys with ledger rows but no cached balance yet still show up, as
	// stale zero rows, so callers see the full warehouse picture.
	for commodityID, maxSeq := range ledgerSeqs {
		id, err := uuid.Parse(commodityID)
		if err != nil {
			continue
		}
		views = append(views, BalanceView{
			WarehouseID: warehouseID,
			CommodityID: id,
			Quantity:    decimal.Zero,
			LedgerSeq:   maxSeq,
			Stale:       maxSeq != 0,
		})
	}
	return views, nil
}

func (s *service) History(ctx context.Context, input HistoryInput) (*HistoryPage, error) {
	if input.From != nil && input.To != nil && input.To.Before(*input.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "history range end precedes start")
	}

	cursor, err := pagination.ParseSeqCursor(input.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid history cursor")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	query := ledger.HistoryQuery{
		WarehouseID: input.WarehouseID,
		CommodityID: input.CommodityID,
		From:        input.From,
		To:          input.To,
		Limit:       limit + 1,
	}
	if cursor != nil {
		query.AfterSeq = cursor.Seq
	}

	rows, err := s.ledgerRepo.ListByKey(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list movements")
	}

	page := &HistoryPage{Movements: rows}
	if len(rows) > limit {
		page.Movements = rows[:limit]
		page.HasMore = true
		last := page.Movements[limit-1]
		page.NextCursor = pagination.EncodeSeqCursor(pagination.SeqCursor{Seq: last.Seq, ID: last.ID})
	}
	return page, nil
}
