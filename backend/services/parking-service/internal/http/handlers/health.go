package handlers

import "net/http"

// NewHealthHandler reports liveness and the active mode.
func NewHealthHandler(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mode": mode})
	}
}
