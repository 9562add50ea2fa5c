package api

import "strings"

// GenerateRequest is the inbound body of POST /generate.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// GenerateResponse is returned on a completed generation.
type GenerateResponse struct {
	ResponseText string `json:"response_text"`
}

// HealthResponse is the constant liveness payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version    string `json:"version"`
	BuildSHA   string `json:"build_sha"`
	BuildDate  string `json:"build_date"`
	InstanceID string `json:"instance_id"`
}

// ErrorResponse carries a human readable failure cause.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ValidationDetail locates one schema violation in the request.
type ValidationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError is returned when a request body fails its schema.
type ValidationError struct {
	Details []ValidationDetail `json:"detail"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, strings.Join(d.Loc, ".")+": "+d.Msg)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}
