package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomelab/marketd/internal/domain"
)

// LifecycleService defines the lifecycle transitions the handler requires
// from the service layer.
type LifecycleService interface {
	Close(ctx context.Context, id string, caller common.Address) error
	Resolve(ctx context.Context, id string, caller common.Address, outcome domain.Side) error
	Pause(ctx context.Context, id string, caller common.Address) error
	Unpause(ctx context.Context, id string, caller common.Address) error
}

// LifecycleHandler serves market lifecycle endpoints. The archiver and
// archive reader are optional; modes without object storage run with both
// set to nil.
type LifecycleHandler struct {
	lifecycle LifecycleService
	archiver  domain.Archiver
	archives  domain.BlobReader
	logger    *slog.Logger
}

// NewLifecycleHandler creates a LifecycleHandler.
func NewLifecycleHandler(lifecycle LifecycleService, archiver domain.Archiver, archives domain.BlobReader, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		lifecycle: lifecycle,
		archiver:  archiver,
		archives:  archives,
		logger:    logger,
	}
}

// callerRequest is the JSON body for transitions that only need an acting
// account.
type callerRequest struct {
	Caller string `json:"caller"`
}

func decodeCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return common.Address{}, false
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return common.Address{}, false
	}
	return caller, true
}

// Close ends trading on a market whose deadline has passed. Any account may
// call it.
// POST /api/markets/{id}/close
func (h *LifecycleHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller, ok := decodeCaller(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Close(r.Context(), id, caller); err != nil {
		writeDomainError(w, r, h.logger, err, "close market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "closed",
		"market_id": id,
	})
}

// resolveRequest is the JSON body for market resolution.
type resolveRequest struct {
	Caller  string `json:"caller"`
	Outcome string `json:"outcome"`
}

// Resolve settles a market to its final outcome. Oracle only.
// POST /api/markets/{id}/resolve
func (h *LifecycleHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}
	outcome, err := parseSide(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, "outcome: "+err.Error())
		return
	}

	if err := h.lifecycle.Resolve(r.Context(), id, caller, outcome); err != nil {
		writeDomainError(w, r, h.logger, err, "resolve market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "resolved",
		"market_id": id,
		"outcome":   string(outcome),
	})
}

// Pause suspends trading on a market. Oracle only.
// POST /api/markets/{id}/pause
func (h *LifecycleHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller, ok := decodeCaller(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Pause(r.Context(), id, caller); err != nil {
		writeDomainError(w, r, h.logger, err, "pause market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "paused",
		"market_id": id,
	})
}

// Unpause lifts a trading suspension. Oracle only.
// POST /api/markets/{id}/unpause
func (h *LifecycleHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	caller, ok := decodeCaller(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Unpause(r.Context(), id, caller); err != nil {
		writeDomainError(w, r, h.logger, err, "unpause market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "unpaused",
		"market_id": id,
	})
}

// Archive uploads a resolved market's history to object storage.
// POST /api/markets/{id}/archive
func (h *LifecycleHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "archival is not configured")
		return
	}

	count, err := h.archiver.ArchiveMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "archive market")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "archived",
		"market_id": id,
		"trades":    strconv.FormatInt(count, 10),
	})
}

// archiveObjectResponse describes one stored archive object.
type archiveObjectResponse struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// ListArchive lists the archive objects stored for a market.
// GET /api/markets/{id}/archive
func (h *LifecycleHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if h.archives == nil {
		writeError(w, http.StatusServiceUnavailable, "archival is not configured")
		return
	}

	infos, err := h.archives.List(r.Context(), "archive/markets/"+id+"/")
	if err != nil {
		writeDomainError(w, r, h.logger, err, "list archive")
		return
	}

	out := make([]archiveObjectResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, archiveObjectResponse{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"objects":   out,
	})
}

// GetArchivedTrades streams the archived trade history of a market.
// GET /api/markets/{id}/archive/trades
func (h *LifecycleHandler) GetArchivedTrades(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	if h.archives == nil {
		writeError(w, http.StatusServiceUnavailable, "archival is not configured")
		return
	}

	path := "archive/markets/" + id + "/trades.jsonl"
	exists, err := h.archives.Exists(r.Context(), path)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "read archive")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "no archive for market "+id)
		return
	}

	body, err := h.archives.Get(r.Context(), path)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}
