package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/outcomelab/marketd/internal/domain"
)

// EventsHandler serves the durable event stream for catch-up reads. Live
// delivery happens over the WebSocket hub; this endpoint lets indexers
// replay from a known stream position.
type EventsHandler struct {
	bus    domain.SignalBus
	stream string
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading from the given stream.
func NewEventsHandler(bus domain.SignalBus, stream string, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		bus:    bus,
		stream: stream,
		logger: logger,
	}
}

// streamEventResponse pairs a stream position with its raw event payload.
type streamEventResponse struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns events appended after the given stream id.
// GET /api/events?after=0&limit=100
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	opts := parseListOpts(r)

	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, opts.Limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err, "read events")
		return
	}

	out := make([]streamEventResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, streamEventResponse{
			ID:    m.ID,
			Event: json.RawMessage(m.Payload),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"after":  after,
		"limit":  opts.Limit,
	})
}
