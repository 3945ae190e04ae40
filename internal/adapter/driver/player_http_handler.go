package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alorle/gazibo/internal/application"
	"github.com/alorle/gazibo/internal/playback"
)

// PlayerHTTPHandler handles HTTP requests that drive the playback slot.
type PlayerHTTPHandler struct {
	player *application.PlayerService
	lineup *application.LineupService
	status *application.StatusBroadcaster
	logger *slog.Logger
}

// NewPlayerHTTPHandler creates a new HTTP handler for the player.
func NewPlayerHTTPHandler(
	player *application.PlayerService,
	lineup *application.LineupService,
	status *application.StatusBroadcaster,
	logger *slog.Logger,
) *PlayerHTTPHandler {
	return &PlayerHTTPHandler{player: player, lineup: lineup, status: status, logger: logger}
}

// playRequest selects a channel of the current lineup by URL or by position.
type playRequest struct {
	URL   string `json:"url"`
	Index *int   `json:"index"`
}

// playerResponse represents the playback snapshot in JSON format.
type playerResponse struct {
	State      string           `json:"state"`
	Session    uint64           `json:"session"`
	Channel    *channelResponse `json:"channel,omitempty"`
	RetryCount int              `json:"retry_count"`
	Remaining  int              `json:"remaining"`
	Fullscreen bool             `json:"fullscreen"`
	LastError  string           `json:"last_error,omitempty"`
}

// statusEventResponse is the payload of one server-sent status event.
type statusEventResponse struct {
	Notice string         `json:"notice"`
	Player playerResponse `json:"player"`
}

func toPlayerResponse(s playback.Snapshot) playerResponse {
	resp := playerResponse{
		State:      s.State.String(),
		Session:    s.Session,
		RetryCount: s.RetryCount,
		Remaining:  s.Remaining,
		Fullscreen: s.Fullscreen,
		LastError:  s.LastError,
	}
	if ch, ok := s.Current(); ok {
		resp.Channel = &channelResponse{
			URL:      ch.URL(),
			Name:     ch.Name(),
			Category: ch.Category(),
			Country:  ch.Country(),
			TVGID:    ch.TVGID(),
			Logo:     ch.Logo(),
			Group:    ch.Group(),
		}
	}
	return resp
}

// ServeHTTP routes the request to the appropriate handler based on method and path.
func (h *PlayerHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/player")

	// GET /player - current snapshot
	if r.Method == http.MethodGet && path == "" {
		writeJSON(w, http.StatusOK, toPlayerResponse(h.player.Snapshot()))
		return
	}

	// GET /player/events - status stream
	if r.Method == http.MethodGet && path == "/events" {
		h.handleEvents(w, r)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch path {
	case "/play":
		h.handlePlay(w, r)
	case "/close":
		h.command(w, r, h.player.Close)
	case "/retry":
		h.command(w, r, h.player.Retry)
	case "/fullscreen":
		h.command(w, r, h.player.ToggleFullscreen)
	case "/next":
		h.command(w, r, h.lineup.PlayNext)
	case "/prev":
		h.command(w, r, h.lineup.PlayPrev)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// command runs fn and answers with the resulting snapshot.
func (h *PlayerHTTPHandler) command(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) {
	if err := fn(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerResponse(h.player.Snapshot()))
}

// handlePlay handles POST /player/play
func (h *PlayerHTTPHandler) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Index != nil:
		h.command(w, r, func(ctx context.Context) error { return h.lineup.PlayIndex(ctx, *req.Index) })
	case strings.TrimSpace(req.URL) != "":
		h.command(w, r, func(ctx context.Context) error { return h.lineup.PlayURL(ctx, req.URL) })
	default:
		writeError(w, http.StatusBadRequest, "url or index is required")
	}
}

// handleEvents handles GET /player/events as a server-sent event stream.
func (h *PlayerHTTPHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("status subscriber connected", "remote_addr", r.RemoteAddr)

	err := h.status.Subscribe(r.Context(), func(ev application.StatusEvent) error {
		data, err := json.Marshal(statusEventResponse{
			Notice: ev.Notice.String(),
			Player: toPlayerResponse(ev.Snapshot),
		})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Notice, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("status stream ended", "remote_addr", r.RemoteAddr, "error", err)
	}
}
