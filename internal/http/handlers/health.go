package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

// Health reports ok when the history store answers a one-item listing.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	if a.History != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if _, _, err := a.History.List(ctx, 1, 1); err != nil {
			a.Logger.Warn().Err(err).Msg("health: history store unreachable")
			a.json(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "history": "unreachable"})
			return
		}
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok", "history": "ok"})
}
