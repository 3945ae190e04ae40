package driver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alorle/gazibo/internal/application"
	"github.com/alorle/gazibo/internal/channel"
)

// LineupHTTPHandler handles HTTP requests for the selected country and filter.
type LineupHTTPHandler struct {
	lineup  *application.LineupService
	catalog *application.CatalogService
	logger  *slog.Logger
}

// NewLineupHTTPHandler creates a new HTTP handler for the lineup.
func NewLineupHTTPHandler(lineup *application.LineupService, catalog *application.CatalogService, logger *slog.Logger) *LineupHTTPHandler {
	return &LineupHTTPHandler{lineup: lineup, catalog: catalog, logger: logger}
}

// lineupRequest represents the JSON body for selecting a lineup.
type lineupRequest struct {
	Country  string `json:"country"`
	Category string `json:"category"`
	Q        string `json:"q"`
}

// lineupResponse represents the visible lineup in JSON format.
type lineupResponse struct {
	Country    string            `json:"country"`
	Category   string            `json:"category"`
	Q          string            `json:"q"`
	Total      int               `json:"total"`
	Focused    int               `json:"focused"`
	Categories []string          `json:"categories"`
	Channels   []channelResponse `json:"channels"`
}

// ServeHTTP handles GET and PUT /lineup
func (h *LineupHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.toResponse(h.lineup.Current()))
	case http.MethodPut:
		h.handleSelect(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *LineupHTTPHandler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req lineupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	country := req.Country
	if country == "" {
		country = h.lineup.Country()
	}
	category := req.Category
	if category == "" {
		category = channel.CategoryAll
	}

	lineup, err := h.lineup.Select(r.Context(), country, channel.Query{Category: category, Search: req.Q})
	if err != nil {
		h.logger.Warn("failed to select lineup", "country", country, "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(lineup))
}

func (h *LineupHTTPHandler) toResponse(l application.Lineup) lineupResponse {
	channels := make([]channelResponse, len(l.Channels))
	for i, ch := range l.Channels {
		channels[i] = channelResponse{
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
	categories := l.Categories
	if categories == nil {
		categories = []string{}
	}
	return lineupResponse{
		Country:    l.Country,
		Category:   l.Query.Category,
		Q:          l.Query.Search,
		Total:      l.Total,
		Focused:    l.Focused,
		Categories: categories,
		Channels:   channels,
	}
}
