package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/fixedpoint"
)

// CustodyService defines the collateral-ledger operations the custody handler
// requires. The in-process bank satisfies it directly.
type CustodyService interface {
	Mint(ctx context.Context, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
}

// CustodyHandler serves collateral balance, approval, and faucet endpoints.
type CustodyHandler struct {
	custody CustodyService
	logger  *slog.Logger
}

// NewCustodyHandler creates a CustodyHandler.
func NewCustodyHandler(custody CustodyService, logger *slog.Logger) *CustodyHandler {
	return &CustodyHandler{
		custody: custody,
		logger:  logger,
	}
}

// faucetRequest is the JSON body for collateral minting.
type faucetRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Faucet mints collateral to an account.
// POST /api/custody/faucet
func (h *CustodyHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, "account: "+err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}

	if err := h.custody.Mint(r.Context(), account, amount); err != nil {
		writeDomainError(w, r, h.logger, err, "mint collateral")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "minted",
		"account": account.Hex(),
		"amount":  fixedpoint.Format(amount),
	})
}

// approveRequest is the JSON body for allowance grants.
type approveRequest struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// Approve grants a spender permission to pull collateral from the owner.
// POST /api/custody/approve
func (h *CustodyHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "owner: "+err.Error())
		return
	}
	spender, err := parseAddress(req.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, "spender: "+err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}

	if err := h.custody.Approve(r.Context(), owner, spender, amount); err != nil {
		writeDomainError(w, r, h.logger, err, "approve")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "approved",
		"owner":   owner.Hex(),
		"spender": spender.Hex(),
		"amount":  fixedpoint.Format(amount),
	})
}

// GetBalance returns an account's free collateral balance.
// GET /api/custody/balance/{account}
func (h *CustodyHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "account: "+err.Error())
		return
	}

	balance, err := h.custody.BalanceOf(r.Context(), account)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.Hex(),
		"balance": fixedpoint.Format(balance),
	})
}

// GetAllowance returns the remaining allowance from owner to spender.
// GET /api/custody/allowance?owner=0x..&spender=0x..
func (h *CustodyHandler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, err := parseAddress(q.Get("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "owner: "+err.Error())
		return
	}
	spender, err := parseAddress(q.Get("spender"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "spender: "+err.Error())
		return
	}

	allowance, err := h.custody.Allowance(r.Context(), owner, spender)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "get allowance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": fixedpoint.Format(allowance),
	})
}
