package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/alorle/gazibo/internal/application"
	"github.com/alorle/gazibo/internal/channel"
)

// CatalogHTTPHandler handles HTTP requests for country channel lists, the
// channel cache and the broken ledger.
type CatalogHTTPHandler struct {
	catalog *application.CatalogService
	lineup  *application.LineupService
	refresh http.Handler
	logger  *slog.Logger
}

// NewCatalogHTTPHandler creates a new HTTP handler for the catalog. Forced
// refreshes are limited to refreshPerMinute requests per client. lineup may be nil.
func NewCatalogHTTPHandler(
	catalog *application.CatalogService,
	lineup *application.LineupService,
	refreshPerMinute int,
	logger *slog.Logger,
) *CatalogHTTPHandler {
	h := &CatalogHTTPHandler{catalog: catalog, lineup: lineup, logger: logger}
	h.refresh = RateLimit(refreshPerMinute, time.Minute)(http.HandlerFunc(h.handleRefresh))
	return h
}

// errorResponse represents a JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

// channelResponse represents a channel in JSON format.
type channelResponse struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Country  string `json:"country,omitempty"`
	TVGID    string `json:"tvg_id,omitempty"`
	Logo     string `json:"logo,omitempty"`
	Group    string `json:"group,omitempty"`
	Broken   bool   `json:"broken"`
}

// channelListResponse represents the channels of one country.
type channelListResponse struct {
	Country    string            `json:"country"`
	Total      int               `json:"total"`
	Categories []string          `json:"categories"`
	Channels   []channelResponse `json:"channels"`
}

// brokenRequest represents the JSON body for marking a stream broken.
type brokenRequest struct {
	URL string `json:"url"`
}

// brokenEntryResponse represents a broken ledger entry in JSON format.
type brokenEntryResponse struct {
	URL      string `json:"url"`
	MarkedAt string `json:"marked_at"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps application and domain errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, channel.ErrInvalidCountryCode),
		errors.Is(err, application.ErrIndexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, channel.ErrChannelNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, application.ErrNoSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrCatalogUnavailable),
		errors.Is(err, application.ErrPlayerStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// RateLimit limits requests per client IP, answering 429 with a Retry-After
// header once limit requests were made within window.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many refresh requests")
		}),
	)
}

// ServeHTTP routes the request to the appropriate handler based on method and path.
func (h *CatalogHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// DELETE /cache - drop every cached channel list
	if path == "/cache" {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleClearCache(w, r)
		return
	}

	// /broken - the broken ledger
	if path == "/broken" {
		switch r.Method {
		case http.MethodGet:
			h.handleListBroken(w, r)
		case http.MethodPost:
			h.handleMarkBroken(w, r)
		case http.MethodDelete:
			h.handleClearBroken(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	// Routes under /countries/{code}/
	code, action, ok := splitCountryPath(path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "channels":
		h.handleChannels(w, r, code)
	case r.Method == http.MethodPost && action == "refresh":
		h.refresh.ServeHTTP(w, r)
	case r.Method == http.MethodGet && action == "playlist.m3u":
		h.handlePlaylist(w, r, code)
	case r.Method == http.MethodDelete && action == "cache":
		h.handleInvalidate(w, r, code)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// splitCountryPath splits /countries/{code}/{action}.
func splitCountryPath(path string) (code, action string, ok bool) {
	rest, found := strings.CutPrefix(path, "/countries/")
	if !found {
		return "", "", false
	}
	code, action, found = strings.Cut(rest, "/")
	if !found || code == "" || action == "" {
		return "", "", false
	}
	return code, action, true
}

func (h *CatalogHTTPHandler) toChannelResponses(channels []channel.Channel) []channelResponse {
	response := make([]channelResponse, len(channels))
	for i, ch := range channels {
		response[i] = channelResponse{
			URL:      ch.URL(),
			Name:     ch.Name(),
			Category: ch.Category(),
			Country:  ch.Country(),
			TVGID:    ch.TVGID(),
			Logo:     ch.Logo(),
			Group:    ch.Group(),
			Broken:   h.catalog.IsBroken(ch.URL()),
		}
	}
	return response
}

// handleChannels handles GET /countries/{code}/channels?category=&q=
func (h *CatalogHTTPHandler) handleChannels(w http.ResponseWriter, r *http.Request, code string) {
	channels, err := h.catalog.GetChannels(r.Context(), code)
	if err != nil {
		h.logger.Warn("failed to load channels", "country", code, "error", err)
		writeServiceError(w, err)
		return
	}

	q := channel.Query{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("q"),
	}
	normalized, _ := channel.NormalizeCountryCode(code)
	writeJSON(w, http.StatusOK, channelListResponse{
		Country:    normalized,
		Total:      len(channels),
		Categories: h.catalog.Categories(channels),
		Channels:   h.toChannelResponses(h.catalog.Filter(channels, q)),
	})
}

// handleRefresh handles POST /countries/{code}/refresh
func (h *CatalogHTTPHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	code, _, _ := splitCountryPath(r.URL.Path)
	normalized, err := channel.NormalizeCountryCode(code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	channels, ok := h.catalog.RefreshChannels(r.Context(), normalized)
	if !ok {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if h.lineup != nil {
		h.lineup.Replace(normalized, channels)
	}

	writeJSON(w, http.StatusOK, channelListResponse{
		Country:    normalized,
		Total:      len(channels),
		Categories: h.catalog.Categories(channels),
		Channels:   h.toChannelResponses(channels),
	})
}

// handlePlaylist handles GET /countries/{code}/playlist.m3u
func (h *CatalogHTTPHandler) handlePlaylist(w http.ResponseWriter, r *http.Request, code string) {
	// Render into memory first so failures can still produce a JSON error.
	var buf strings.Builder
	if err := h.catalog.ExportPlaylist(r.Context(), code, &buf); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", strings.ToLower(code)+".m3u"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(buf.String()))
}

// handleInvalidate handles DELETE /countries/{code}/cache
func (h *CatalogHTTPHandler) handleInvalidate(w http.ResponseWriter, r *http.Request, code string) {
	if err := h.catalog.InvalidateCountry(r.Context(), code); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearCache handles DELETE /cache
func (h *CatalogHTTPHandler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.ClearCache(r.Context()); err != nil {
		h.logger.Error("failed to clear cache", "error", err)
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListBroken handles GET /broken
func (h *CatalogHTTPHandler) handleListBroken(w http.ResponseWriter, _ *http.Request) {
	entries := h.catalog.BrokenEntries()
	response := make([]brokenEntryResponse, len(entries))
	for i, e := range entries {
		response[i] = brokenEntryResponse{
			URL:      e.URL,
			MarkedAt: e.MarkedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// handleMarkBroken handles POST /broken
func (h *CatalogHTTPHandler) handleMarkBroken(w http.ResponseWriter, r *http.Request) {
	var req brokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	if err := h.catalog.MarkBroken(r.Context(), req.URL); err != nil {
		h.logger.Error("failed to mark stream broken", "url", req.URL, "error", err)
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearBroken handles DELETE /broken
func (h *CatalogHTTPHandler) handleClearBroken(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.ClearBrokenLedger(r.Context()); err != nil {
		h.logger.Error("failed to clear broken ledger", "error", err)
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
