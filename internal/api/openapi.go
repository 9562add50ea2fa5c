package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaspardpetit/llmgate/internal/logx"
)

//go:embed openapi.yaml
var openapiYAML []byte

// Validator checks request bodies against the schemas of the embedded
// OpenAPI document.
type Validator struct {
	doc      *openapi3.T
	generate *openapi3.Schema
}

// NewValidator loads and validates the embedded OpenAPI document.
func NewValidator() (*Validator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	ref := doc.Components.Schemas["GenerateRequest"]
	if ref == nil || ref.Value == nil {
		return nil, errors.New("openapi document: missing GenerateRequest schema")
	}
	return &Validator{doc: doc, generate: ref.Value}, nil
}

// MustValidator is NewValidator for package-level setup; it panics on error.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// DecodeGenerate parses body as a GenerateRequest. Schema violations are
// returned as a *ValidationError listing every failing field.
func (v *Validator) DecodeGenerate(body []byte) (GenerateRequest, error) {
	var req GenerateRequest
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return req, &ValidationError{Details: []ValidationDetail{{
			Loc:  []string{"body"},
			Msg:  "JSON decode error: " + err.Error(),
			Type: "json_invalid",
		}}}
	}
	if err := v.generate.VisitJSON(value, openapi3.MultiErrors()); err != nil {
		return req, &ValidationError{Details: validationDetails(err)}
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, &ValidationError{Details: []ValidationDetail{{Loc: []string{"body"}, Msg: err.Error(), Type: "type_error"}}}
	}
	return req, nil
}

func validationDetails(err error) []ValidationDetail {
	switch e := err.(type) {
	case openapi3.MultiError:
		var out []ValidationDetail
		for _, inner := range e {
			out = append(out, validationDetails(inner)...)
		}
		return out
	case *openapi3.SchemaError:
		loc := append([]string{"body"}, e.JSONPointer()...)
		return []ValidationDetail{{Loc: loc, Msg: e.Reason, Type: detailType(e.SchemaField)}}
	default:
		return []ValidationDetail{{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"}}
	}
}

func detailType(schemaField string) string {
	switch schemaField {
	case "required":
		return "missing"
	case "type", "nullable":
		return "string_type"
	case "minLength":
		return "string_too_short"
	default:
		return schemaField
	}
}

// OpenAPIHandler serves the embedded OpenAPI document as JSON.
func OpenAPIHandler(v *Validator) http.HandlerFunc {
	b, err := json.Marshal(v.doc)
	if err != nil {
		logx.Log.Error().Err(err).Msg("marshal openapi document")
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if b == nil {
			writeDetail(w, http.StatusInternalServerError, "openapi document unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}
}
