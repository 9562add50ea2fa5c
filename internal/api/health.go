package api

import (
	"encoding/json"
	"net/http"

	"github.com/gaspardpetit/llmgate/internal/logx"
)

// HealthHandler handles GET /health. It never consults the inference service.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logx.Log.Info().Msg("health check endpoint was called")
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

// VersionHandler handles GET /version.
func VersionHandler(info VersionInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, info)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Log.Error().Err(err).Int("status", status).Msg("encode response")
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
