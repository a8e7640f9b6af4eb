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
)

// TradeService defines the methods that the trade handler requires from the
// service layer.
type TradeService interface {
	QuoteBuy(ctx context.Context, id string, side domain.Side, delta *big.Int) (*big.Int, error)
	QuoteSell(ctx context.Context, id string, side domain.Side, delta *big.Int) (*big.Int, error)
	Buy(ctx context.Context, id string, account common.Address, side domain.Side, delta *big.Int) (domain.Trade, error)
	Sell(ctx context.Context, id string, account common.Address, side domain.Side, delta *big.Int) (domain.Trade, error)
	TransferShares(ctx context.Context, id string, side domain.Side, from, to common.Address, amount *big.Int) error
	Redeem(ctx context.Context, id string, caller common.Address) (*big.Int, error)
	Position(ctx context.Context, id string, account common.Address) (domain.Position, error)
	TradesByMarket(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Trade, error)
	TradesByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trading, position, and settlement endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// tradeResponse is the JSON shape of one executed fill.
type tradeResponse struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	Account    string    `json:"account"`
	Side       string    `json:"side"`
	Kind       string    `json:"kind"`
	Shares     string    `json:"shares"`
	Collateral string    `json:"collateral"`
	CreatedAt  time.Time `json:"created_at"`
}

func tradeFrom(t domain.Trade) tradeResponse {
	return tradeResponse{
		ID:         t.ID,
		MarketID:   t.MarketID,
		Account:    t.Account.Hex(),
		Side:       string(t.Side),
		Kind:       string(t.Kind),
		Shares:     fixedpoint.Format(t.Shares),
		Collateral: fixedpoint.Format(t.Collateral),
		CreatedAt:  t.CreatedAt.UTC(),
	}
}

// quoteRequest is the JSON body for pricing a prospective trade.
type quoteRequest struct {
	Side   string `json:"side"`
	Kind   string `json:"kind"`
	Shares string `json:"shares"`
}

// Quote prices a prospective buy or sell without mutating state.
// POST /api/markets/{id}/quote
func (h *TradeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, "shares: "+err.Error())
		return
	}

	var collateral *big.Int
	switch domain.TradeKind(req.Kind) {
	case domain.TradeKindBuy:
		collateral, err = h.trades.QuoteBuy(r.Context(), id, side, shares)
	case domain.TradeKindSell:
		collateral, err = h.trades.QuoteSell(r.Context(), id, side, shares)
	default:
		writeError(w, http.StatusBadRequest, "kind must be buy or sell")
		return
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err, "quote")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id":  id,
		"side":       string(side),
		"kind":       req.Kind,
		"shares":     fixedpoint.Format(shares),
		"collateral": fixedpoint.Format(collateral),
	})
}

// tradeRequest is the JSON body for buy and sell orders.
type tradeRequest struct {
	Account string `json:"account"`
	Side    string `json:"side"`
	Shares  string `json:"shares"`
}

func (h *TradeHandler) decodeTradeRequest(w http.ResponseWriter, r *http.Request) (common.Address, domain.Side, *big.Int, bool) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return common.Address{}, "", nil, false
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, "account: "+err.Error())
		return common.Address{}, "", nil, false
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, "", nil, false
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, "shares: "+err.Error())
		return common.Address{}, "", nil, false
	}
	return account, side, shares, true
}

// Buy purchases outcome shares at the current cost-function price.
// POST /api/markets/{id}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	account, side, shares, ok := h.decodeTradeRequest(w, r)
	if !ok {
		return
	}

	trade, err := h.trades.Buy(r.Context(), id, account, side, shares)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "buy")
		return
	}

	writeJSON(w, http.StatusCreated, tradeFrom(trade))
}

// Sell sells outcome shares back to the market.
// POST /api/markets/{id}/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	account, side, shares, ok := h.decodeTradeRequest(w, r)
	if !ok {
		return
	}

	trade, err := h.trades.Sell(r.Context(), id, account, side, shares)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "sell")
		return
	}

	writeJSON(w, http.StatusCreated, tradeFrom(trade))
}

// transferRequest is the JSON body for share transfers.
type transferRequest struct {
	Side   string `json:"side"`
	From   string `json:"from"`
	To     string `json:"to"`
	Shares string `json:"shares"`
}

// Transfer moves share balance between accounts inside one market.
// POST /api/markets/{id}/transfer
func (h *TradeHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, "shares: "+err.Error())
		return
	}

	if err := h.trades.TransferShares(r.Context(), id, side, from, to, shares); err != nil {
		writeDomainError(w, r, h.logger, err, "transfer")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "transferred",
		"market_id": id,
		"side":      string(side),
		"shares":    fixedpoint.Format(shares),
	})
}

// redeemRequest is the JSON body for settlement claims.
type redeemRequest struct {
	Account string `json:"account"`
}

// Redeem pays out the caller's winning shares on a resolved market.
// POST /api/markets/{id}/redeem
func (h *TradeHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, "account: "+err.Error())
		return
	}

	payout, err := h.trades.Redeem(r.Context(), id, account)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "redeem")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "redeemed",
		"market_id": id,
		"account":   account.Hex(),
		"payout":    fixedpoint.Format(payout),
	})
}

// GetPosition returns one account's share balances in a market.
// GET /api/markets/{id}/positions/{account}
func (h *TradeHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	account, err := parseAddress(pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "account: "+err.Error())
		return
	}

	pos, err := h.trades.Position(r.Context(), id, account)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get position")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"market_id": id,
		"account":   account.Hex(),
		"yes":       fixedpoint.Format(pos.Yes),
		"no":        fixedpoint.Format(pos.No),
	})
}

// listTradesResponse wraps fill-history output.
type listTradesResponse struct {
	Trades []tradeResponse `json:"trades"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// ListMarketTrades returns a market's fill history, newest first.
// GET /api/markets/{id}/trades?limit=50&offset=0
func (h *TradeHandler) ListMarketTrades(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	opts := parseListOpts(r)

	trades, err := h.trades.TradesByMarket(r.Context(), id, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list trades")
		return
	}

	h.writeTrades(w, trades, opts)
}

// ListAccountTrades returns an account's fill history across markets.
// GET /api/accounts/{account}/trades?limit=50&offset=0
func (h *TradeHandler) ListAccountTrades(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "account: "+err.Error())
		return
	}
	opts := parseListOpts(r)

	trades, err := h.trades.TradesByAccount(r.Context(), account, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list trades")
		return
	}

	h.writeTrades(w, trades, opts)
}

func (h *TradeHandler) writeTrades(w http.ResponseWriter, trades []domain.Trade, opts domain.ListOpts) {
	out := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeFrom(t))
	}
	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: out,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
