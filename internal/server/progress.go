package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/epiwatch/epiwatch/internal/orchestrator"
)

const progressWriteTimeout = 5 * time.Second

// ProgressHub fans orchestrator progress events out to websocket subscribers.
// Slow subscribers are dropped rather than blocking a dashboard run.
type ProgressHub struct {
	log zerolog.Logger

	mu          sync.Mutex
	subscribers map[chan orchestrator.ProgressEvent]struct{}
	lastEvent   *orchestrator.ProgressEvent
}

// NewProgressHub creates a progress hub.
func NewProgressHub(log zerolog.Logger) *ProgressHub {
	return &ProgressHub{
		log:         log.With().Str("component", "progress_hub").Logger(),
		subscribers: make(map[chan orchestrator.ProgressEvent]struct{}),
	}
}

// Broadcast delivers an event to all subscribers without blocking the caller.
// Intended to be registered via orchestrator.WithProgress.
func (h *ProgressHub) Broadcast(ev orchestrator.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastEvent = &ev
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full, skip this event for them.
		}
	}
}

// LastEvent returns the most recently broadcast event, or nil when no run has
// reported progress yet.
func (h *ProgressHub) LastEvent() *orchestrator.ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastEvent
}

func (h *ProgressHub) subscribe() chan orchestrator.ProgressEvent {
	ch := make(chan orchestrator.ProgressEvent, 16)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[ch] = struct{}{}

	return ch
}

func (h *ProgressHub) unsubscribe(ch chan orchestrator.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, ch)
}

// HandleProgress upgrades the connection to a websocket and streams progress
// events until the client disconnects. GET /api/dashboard/progress
func (h *ProgressHub) HandleProgress(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is handled by the router middleware
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	h.log.Debug().Msg("Progress subscriber connected")

	// New subscribers immediately see where the current run stands.
	if last := h.LastEvent(); last != nil {
		if err := h.writeEvent(r.Context(), conn, *last); err != nil {
			return
		}
	}

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-ch:
			if err := h.writeEvent(ctx, conn, ev); err != nil {
				h.log.Debug().Err(err).Msg("Progress subscriber write failed")
				return
			}
		}
	}
}

func (h *ProgressHub) writeEvent(ctx context.Context, conn *websocket.Conn, ev orchestrator.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, progressWriteTimeout)
	defer cancel()

	return conn.Write(writeCtx, websocket.MessageText, data)
}
