package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/domain"
	"github.com/outcomelab/marketd/internal/fixedpoint"
	"github.com/outcomelab/marketd/internal/registry"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, p registry.CreateParams) (domain.MarketInfo, error)
	GetMarket(ctx context.Context, id string) (domain.MarketInfo, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.RegistryEntry, int64, error)
	Prices(ctx context.Context, id string) (yes, no *big.Int, err error)
	UpdateMetadata(ctx context.Context, caller common.Address, id, uri string) error
}

// MarketHandler serves market creation and read endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketResponse is the JSON shape of a market's full state. Amounts are
// fixed-point decimal strings.
type marketResponse struct {
	ID              string    `json:"id"`
	Address         string    `json:"address"`
	Oracle          string    `json:"oracle"`
	Creator         string    `json:"creator"`
	Status          string    `json:"status"`
	Outcome         string    `json:"outcome,omitempty"`
	Paused          bool      `json:"paused"`
	YesShares       string    `json:"yes_shares"`
	NoShares        string    `json:"no_shares"`
	Custody         string    `json:"custody"`
	LiquidityParam  string    `json:"liquidity_param"`
	TradingDeadline time.Time `json:"trading_deadline"`
	ResolveTime     time.Time `json:"resolve_time"`
	MetadataURI     string    `json:"metadata_uri"`
	CreatedAt       time.Time `json:"created_at"`
}

func marketFromInfo(info domain.MarketInfo) marketResponse {
	return marketResponse{
		ID:              info.ID,
		Address:         info.Address.Hex(),
		Oracle:          info.Oracle.Hex(),
		Creator:         info.Creator.Hex(),
		Status:          string(info.Status),
		Outcome:         string(info.Outcome),
		Paused:          info.Paused,
		YesShares:       fixedpoint.Format(info.YesShares),
		NoShares:        fixedpoint.Format(info.NoShares),
		Custody:         fixedpoint.Format(info.Custody),
		LiquidityParam:  fixedpoint.Format(info.LiquidityParam),
		TradingDeadline: info.TradingDeadline.UTC(),
		ResolveTime:     info.ResolveTime.UTC(),
		MetadataURI:     info.MetadataURI,
		CreatedAt:       info.CreatedAt.UTC(),
	}
}

// entryResponse is the JSON shape of a registry listing row.
type entryResponse struct {
	RegistryID  int64     `json:"registry_id"`
	MarketID    string    `json:"market_id"`
	Address     string    `json:"address"`
	Creator     string    `json:"creator"`
	MetadataURI string    `json:"metadata_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

// createMarketRequest is the JSON body for market creation.
type createMarketRequest struct {
	Creator         string    `json:"creator"`
	Oracle          string    `json:"oracle"`
	TradingDeadline time.Time `json:"trading_deadline"`
	ResolveTime     time.Time `json:"resolve_time"`
	LiquidityParam  string    `json:"liquidity_param"`
	MetadataURI     string    `json:"metadata_uri"`
}

// CreateMarket creates, funds, and seeds a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	creator, err := parseAddress(req.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, "creator: "+err.Error())
		return
	}
	oracle, err := parseAddress(req.Oracle)
	if err != nil {
		writeError(w, http.StatusBadRequest, "oracle: "+err.Error())
		return
	}
	liquidityParam, err := parseAmount(req.LiquidityParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "liquidity_param: "+err.Error())
		return
	}

	info, err := h.markets.CreateMarket(r.Context(), registry.CreateParams{
		Creator:         creator,
		Oracle:          oracle,
		TradingDeadline: req.TradingDeadline,
		ResolveTime:     req.ResolveTime,
		LiquidityParam:  liquidityParam,
		MetadataURI:     req.MetadataURI,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err, "create market")
		return
	}

	writeJSON(w, http.StatusCreated, marketFromInfo(info))
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []entryResponse `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns registered markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, total, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list markets")
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			RegistryID:  e.ID,
			MarketID:    e.MarketID,
			Address:     e.Address.Hex(),
			Creator:     e.Creator.Hex(),
			MetadataURI: e.MetadataURI,
			CreatedAt:   e.CreatedAt.UTC(),
		})
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: out,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market's full state by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	info, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get market")
		return
	}

	writeJSON(w, http.StatusOK, marketFromInfo(info))
}

// GetPrices returns the current marginal prices of both sides.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	yes, no, err := h.markets.Prices(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get prices")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"yes":       fixedpoint.Format(yes),
		"no":        fixedpoint.Format(no),
	})
}

// updateMetadataRequest is the JSON body for metadata replacement.
type updateMetadataRequest struct {
	Caller      string `json:"caller"`
	MetadataURI string `json:"metadata_uri"`
}

// UpdateMetadata replaces a market's metadata URI. Creator only.
// PUT /api/markets/{id}/metadata
func (h *MarketHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req updateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}

	if err := h.markets.UpdateMetadata(r.Context(), caller, id, req.MetadataURI); err != nil {
		writeDomainError(w, r, h.logger, err, "update metadata")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "updated",
		"market_id":    id,
		"metadata_uri": req.MetadataURI,
	})
}
