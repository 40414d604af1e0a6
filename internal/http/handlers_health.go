package httpx

import (
	"net/http"

	"github.com/ragbox/ragbox/config"
)

type healthResponse struct {
	Status   string          `json:"status"`
	AuthMode config.AuthMode `json:"authMode"`
}

// healthHandler reports liveness and the active authentication mode. HEAD
// requests get headers only.
func healthHandler(mode config.AuthMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", AuthMode: mode})
	}
}
