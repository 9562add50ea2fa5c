package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/llmgate/internal/logx"
	"github.com/gaspardpetit/llmgate/internal/metrics"
	"github.com/gaspardpetit/llmgate/internal/ollama"
)

const maxRequestBytes = 16 << 20

// Generator produces the full text for a prompt. Errors wrapping
// ollama.ErrUnavailable are downstream communication failures.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// GenerateHandler handles POST /generate.
func GenerateHandler(gen Generator, v *Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqID := chiMiddleware.GetReqID(r.Context())
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err != nil {
			metrics.RecordGenerate("", metrics.OutcomeInvalid)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			logx.Log.Warn().Str("request_id", reqID).Err(err).Msg("read request body")
			writeDetail(w, http.StatusBadRequest, "could not read request body: "+err.Error())
			return
		}
		req, err := v.DecodeGenerate(body)
		if err != nil {
			metrics.RecordGenerate("", metrics.OutcomeInvalid)
			logx.Log.Warn().Str("request_id", reqID).Err(err).Msg("rejected generation request")
			var ve *ValidationError
			if errors.As(err, &ve) {
				writeJSON(w, http.StatusUnprocessableEntity, ve)
				return
			}
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		logx.Log.Info().Str("request_id", reqID).Str("model", req.Model).Msg("received generation request")
		done := metrics.TrackInFlight()
		start := time.Now()
		text, err := gen.Generate(r.Context(), req.Model, req.Prompt)
		done()
		metrics.ObserveGenerateDuration(req.Model, time.Since(start))
		if err != nil {
			handleGenerateErr(w, reqID, req.Model, err)
			return
		}

		metrics.RecordGenerate(req.Model, metrics.OutcomeSuccess)
		metrics.RecordResponseBytes(req.Model, len(text))
		logx.Log.Info().Str("request_id", reqID).Str("model", req.Model).Dur("duration", time.Since(start)).Msg("generated response")
		writeJSON(w, http.StatusOK, GenerateResponse{ResponseText: text})
	}
}

func handleGenerateErr(w http.ResponseWriter, reqID, model string, err error) {
	switch {
	case errors.Is(err, ollama.ErrUnavailable):
		metrics.RecordGenerate(model, metrics.OutcomeUnavailable)
		logx.Log.Error().Str("request_id", reqID).Str("model", model).Err(err).Msg("error communicating with ollama")
		writeDetail(w, http.StatusServiceUnavailable, "Could not communicate with the internal Ollama service: "+err.Error())
	default:
		metrics.RecordGenerate(model, metrics.OutcomeInternal)
		logx.Log.Error().Str("request_id", reqID).Str("model", model).Err(err).Msg("unexpected error during generation")
		writeDetail(w, http.StatusInternalServerError, internalDetail(err))
	}
}

func internalDetail(cause any) string {
	return fmt.Sprintf("An internal error occurred: %v", cause)
}
