package handler

import (
	"net/http"

	"github.com/sakif/brainbox/internal/auth"
	"github.com/sakif/brainbox/internal/service"
)

// StatsHandler exposes the per-user aggregate counters.
type StatsHandler struct {
	stats *service.StatsService
}

func NewStatsHandler(stats *service.StatsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// HandleGet returns the user's aggregate counters. A user who has never
// written anything gets zeroed counters rather than a 404.
//
// HTTP: GET /api/stats
func (h *StatsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	stats, err := h.stats.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
