package server

import (
	"encoding/json"
	"net/http"

	"github.com/joshp123/unisenza-bridge/internal/core"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// IntegrationsHandler serves the integration registry.
func IntegrationsHandler(registry *core.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/integrations", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, registry.List())
	})
	mux.HandleFunc("GET /api/integrations/{id}", func(w http.ResponseWriter, r *http.Request) {
		desc, ok := registry.Describe(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "integration not found")
			return
		}
		writeJSON(w, http.StatusOK, desc)
	})
	return mux
}

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}
