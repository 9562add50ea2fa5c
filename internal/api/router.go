package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter builds the gateway API routes.
func NewRouter(gen Generator, v *Validator, info VersionInfo) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
	r.Get("/health", HealthHandler())
	r.Post("/generate", GenerateHandler(gen, v))
	r.Get("/version", VersionHandler(info))
	r.Get("/openapi.json", OpenAPIHandler(v))
	r.Get("/docs", SwaggerHandler())
	return r
}
