package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
)

// TradeArchiveStore is the narrow read access the archiver needs: the full
// fill history of one market. The Postgres and memory trade stores satisfy
// it through ListByMarket.
type TradeArchiveStore interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// MarketSnapshotter supplies the final state of a market for the archive
// header object.
type MarketSnapshotter interface {
	GetMarket(ctx context.Context, marketID string) (domain.MarketInfo, error)
}

// ArchiveImpl implements domain.Archiver: after a market resolves, its fill
// history is serialized to JSONL and uploaded to object storage together
// with a JSON snapshot of the final market state.
//
// Nothing is deleted from the primary store here; pruning is a separate,
// explicit step to be run after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	trades  TradeArchiveStore
	markets MarketSnapshotter
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	trades TradeArchiveStore,
	markets MarketSnapshotter,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		trades:  trades,
		markets: markets,
		audit:   audit,
		logger:  logger,
	}
}

// archivedTrade is the JSONL row format for archived fills.
type archivedTrade struct {
	ID         string `json:"id"`
	MarketID   string `json:"market_id"`
	Account    string `json:"account"`
	Side       string `json:"side"`
	Kind       string `json:"kind"`
	Shares     string `json:"shares"`
	Collateral string `json:"collateral"`
	CreatedAt  string `json:"created_at"`
}

// archivedMarket is the JSON header format for the final market state.
type archivedMarket struct {
	ID              string `json:"id"`
	Address         string `json:"address"`
	Oracle          string `json:"oracle"`
	Creator         string `json:"creator"`
	Status          string `json:"status"`
	Outcome         string `json:"outcome"`
	YesShares       string `json:"yes_shares"`
	NoShares        string `json:"no_shares"`
	Custody         string `json:"custody"`
	TradingDeadline string `json:"trading_deadline"`
	ResolveTime     string `json:"resolve_time"`
	TradeCount      int    `json:"trade_count"`
}

// ArchiveMarket uploads the full trade history of a resolved market to
// archive/markets/{id}/trades.jsonl and the final state to
// archive/markets/{id}/market.json, returning the number of archived fills.
func (a *ArchiveImpl) ArchiveMarket(ctx context.Context, marketID string) (int64, error) {
	info, err := a.markets.GetMarket(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s: %w", marketID, err)
	}
	if info.Status != domain.StatusResolved {
		return 0, fmt.Errorf("s3blob: archive market %s: %w", marketID, domain.ErrNotResolved)
	}

	// Page through the full history; the store returns newest first.
	var all []domain.Trade
	opts := domain.ListOpts{Limit: 500}
	for {
		page, err := a.trades.ListByMarket(ctx, marketID, opts)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive market %s: query trades: %w", marketID, err)
		}
		all = append(all, page...)
		if len(page) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range all {
		row := archivedTrade{
			ID:         t.ID,
			MarketID:   t.MarketID,
			Account:    t.Account.Hex(),
			Side:       string(t.Side),
			Kind:       string(t.Kind),
			Shares:     fixedpoint.Format(t.Shares),
			Collateral: fixedpoint.Format(t.Collateral),
			CreatedAt:  t.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := enc.Encode(row); err != nil {
			return 0, fmt.Errorf("s3blob: archive market %s: marshal trade: %w", marketID, err)
		}
	}

	prefix := "archive/markets/" + marketID
	if err := a.writer.Put(ctx, prefix+"/trades.jsonl", &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s: upload trades: %w", marketID, err)
	}

	header := archivedMarket{
		ID:              info.ID,
		Address:         info.Address.Hex(),
		Oracle:          info.Oracle.Hex(),
		Creator:         info.Creator.Hex(),
		Status:          string(info.Status),
		Outcome:         string(info.Outcome),
		YesShares:       fixedpoint.Format(info.YesShares),
		NoShares:        fixedpoint.Format(info.NoShares),
		Custody:         fixedpoint.Format(info.Custody),
		TradingDeadline: info.TradingDeadline.UTC().Format(time.RFC3339),
		ResolveTime:     info.ResolveTime.UTC().Format(time.RFC3339),
		TradeCount:      len(all),
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s: marshal header: %w", marketID, err)
	}
	if err := a.writer.Put(ctx, prefix+"/market.json", bytes.NewReader(headerJSON), "application/json"); err != nil {
		return 0, fmt.Errorf("s3blob: archive market %s: upload header: %w", marketID, err)
	}

	if err := a.audit.Log(ctx, "market_archived", map[string]any{
		"market_id": marketID,
		"trades":    len(all),
		"path":      prefix,
	}); err != nil {
		a.logger.WarnContext(ctx, "s3blob: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	return int64(len(all)), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
