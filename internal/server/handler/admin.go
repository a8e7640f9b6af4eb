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

// AdminService defines the owner-gated registry operations the admin handler
// requires. The concrete registry satisfies it directly.
type AdminService interface {
	Owner() common.Address
	Fees() (creationFee, initialLiquidity *big.Int)
	SetCreationFee(ctx context.Context, caller common.Address, fee *big.Int) error
	SetInitialLiquidity(ctx context.Context, caller common.Address, liquidity *big.Int) error
	WithdrawFees(ctx context.Context, caller, to common.Address) (*big.Int, error)
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
}

// AdminHandler serves registry administration endpoints.
type AdminHandler struct {
	admin  AdminService
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, audit domain.AuditStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		audit:  audit,
		logger: logger,
	}
}

// GetConfig returns the registry owner and current fee parameters.
// GET /api/admin/config
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	fee, liquidity := h.admin.Fees()
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":             h.admin.Owner().Hex(),
		"creation_fee":      fixedpoint.Format(fee),
		"initial_liquidity": fixedpoint.Format(liquidity),
	})
}

// amountRequest is the JSON body for fee parameter updates.
type amountRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func decodeAmountRequest(w http.ResponseWriter, r *http.Request) (common.Address, *big.Int, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return common.Address{}, nil, false
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return common.Address{}, nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return common.Address{}, nil, false
	}
	return caller, amount, true
}

// SetCreationFee updates the market creation fee. Owner only.
// PUT /api/admin/fees/creation
func (h *AdminHandler) SetCreationFee(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := decodeAmountRequest(w, r)
	if !ok {
		return
	}

	if err := h.admin.SetCreationFee(r.Context(), caller, amount); err != nil {
		writeDomainError(w, r, h.logger, err, "set creation fee")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "updated",
		"creation_fee": fixedpoint.Format(amount),
	})
}

// SetInitialLiquidity updates the per-market seed liquidity. Owner only.
// PUT /api/admin/fees/liquidity
func (h *AdminHandler) SetInitialLiquidity(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := decodeAmountRequest(w, r)
	if !ok {
		return
	}

	if err := h.admin.SetInitialLiquidity(r.Context(), caller, amount); err != nil {
		writeDomainError(w, r, h.logger, err, "set initial liquidity")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":            "updated",
		"initial_liquidity": fixedpoint.Format(amount),
	})
}

// withdrawRequest is the JSON body for fee withdrawal.
type withdrawRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

// WithdrawFees sweeps the registry's accumulated fee balance. Owner only.
// POST /api/admin/withdraw
func (h *AdminHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}

	amount, err := h.admin.WithdrawFees(r.Context(), caller, to)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "withdraw fees")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "withdrawn",
		"to":     to.Hex(),
		"amount": fixedpoint.Format(amount),
	})
}

// ownershipRequest is the JSON body for ownership transfer.
type ownershipRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"new_owner"`
}

// TransferOwnership hands the registry to a new owner. Owner only.
// POST /api/admin/ownership
func (h *AdminHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}
	newOwner, err := parseAddress(req.NewOwner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "new_owner: "+err.Error())
		return
	}

	if err := h.admin.TransferOwnership(r.Context(), caller, newOwner); err != nil {
		writeDomainError(w, r, h.logger, err, "transfer ownership")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "transferred",
		"owner":  newOwner.Hex(),
	})
}

// auditResponse is the JSON shape of one audit log row.
type auditResponse struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt string         `json:"created_at"`
}

// ListAudit returns the admin and lifecycle audit log, newest first.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list audit log")
		return
	}

	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{
			ID:        e.ID,
			Event:     e.Event,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
