package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gaspardpetit/llmgate/internal/api"
	"github.com/gaspardpetit/llmgate/internal/config"
	"github.com/gaspardpetit/llmgate/internal/ollama"
)

type fakeOllama struct {
	*httptest.Server
	calls atomic.Int32
}

func newFakeOllama(t *testing.T, h http.HandlerFunc) *fakeOllama {
	t.Helper()
	f := &fakeOllama{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func newGateway(t *testing.T, generateURL string, timeout time.Duration) *httptest.Server {
	t.Helper()
	cfg := config.GatewayConfig{GenerateURL: generateURL, RequestTimeout: timeout}
	info := api.VersionInfo{Version: "1.2.3", BuildSHA: "abc", BuildDate: "2024-01-01", InstanceID: "inst-1"}
	s := New(cfg, ollama.New(cfg.GenerateURL, cfg.RequestTimeout), api.MustValidator(), info)
	srv := httptest.NewServer(s.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (int, []byte) {
	t.Helper()
	resp, err := http.Post(url+"/generate", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp.StatusCode, b
}

func detail(t *testing.T, b []byte) string {
	t.Helper()
	var v api.ErrorResponse
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", string(b), err)
	}
	return v.Detail
}

func TestE2EGenerate(t *testing.T) {
	ol := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollama.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "phi3" || req.Prompt != "Hello" || req.Stream {
			t.Errorf("unexpected downstream request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"phi3","response":"Hi there","done":true}`))
	})
	gw := newGateway(t, ol.URL+"/api/generate", 5*time.Second)

	status, body := post(t, gw.URL, `{"model": "phi3", "prompt": "Hello"}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if strings.TrimSpace(string(body)) != `{"response_text":"Hi there"}` {
		t.Fatalf("body %s", body)
	}
}

func TestE2EGenerateIdempotent(t *testing.T) {
	ol := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollama.GenerateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "echo:" + req.Prompt})
	})
	gw := newGateway(t, ol.URL+"/api/generate", 5*time.Second)

	s1, b1 := post(t, gw.URL, `{"model":"phi3","prompt":"same"}`)
	s2, b2 := post(t, gw.URL, `{"model":"phi3","prompt":"same"}`)
	if s1 != http.StatusOK || s2 != http.StatusOK || !bytes.Equal(b1, b2) {
		t.Fatalf("responses differ: %d %s vs %d %s", s1, b1, s2, b2)
	}
	if ol.calls.Load() != 2 {
		t.Fatalf("expected two downstream calls, got %d", ol.calls.Load())
	}
}

func TestE2EGenerateMissingResponseField(t *testing.T) {
	ol := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"done":true}`))
	})
	gw := newGateway(t, ol.URL+"/api/generate", 5*time.Second)
	status, body := post(t, gw.URL, `{"model":"phi3","prompt":"Hello"}`)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if strings.TrimSpace(string(body)) != `{"response_text":""}` {
		t.Fatalf("body %s", body)
	}
}

func TestE2EGenerateValidationSkipsDownstream(t *testing.T) {
	ol := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"x"}`))
	})
	gw := newGateway(t, ol.URL+"/api/generate", 5*time.Second)
	for _, body := range []string{`{"prompt":"Hello"}`, `{"model":"phi3"}`} {
		status, b := post(t, gw.URL, body)
		if status != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d: %s", body, status, b)
		}
	}
	if n := ol.calls.Load(); n != 0 {
		t.Fatalf("downstream called %d times", n)
	}
}

func TestE2EGenerateDownstreamUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	gw := newGateway(t, "http://"+addr+"/api/generate", 5*time.Second)
	status, body := post(t, gw.URL, `{"model":"phi3","prompt":"Hello"}`)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if d := detail(t, body); !strings.HasPrefix(d, "Could not communicate with the internal Ollama service") {
		t.Fatalf("detail %q", d)
	}
}

func TestE2EGenerateDownstreamError(t *testing.T) {
	ol := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model crashed"}`))
	})
	gw := newGateway(t, ol.URL+"/api/generate", 5*time.Second)
	status, body := post(t, gw.URL, `{"model":"phi3","prompt":"Hello"}`)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	d := detail(t, body)
	if !strings.Contains(d, "500") || !strings.Contains(d, "model crashed") {
		t.Fatalf("detail should carry the downstream cause: %q", d)
	}
}

func TestE2EGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	ol := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)
	gw := newGateway(t, ol.URL+"/api/generate", 100*time.Millisecond)
	status, body := post(t, gw.URL, `{"model":"phi3","prompt":"Hello"}`)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if d := detail(t, body); !strings.HasPrefix(d, "Could not communicate with the internal Ollama service") {
		t.Fatalf("detail %q", d)
	}
}

func TestE2EGenerateMalformedDownstreamBody(t *testing.T) {
	ol := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	})
	gw := newGateway(t, ol.URL+"/api/generate", 5*time.Second)
	status, body := post(t, gw.URL, `{"model":"phi3","prompt":"Hello"}`)
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if d := detail(t, body); !strings.HasPrefix(d, "An internal error occurred") {
		t.Fatalf("detail %q", d)
	}
}

func TestE2EHealthIgnoresDownstream(t *testing.T) {
	gw := newGateway(t, "http://127.0.0.1:1/api/generate", time.Second)
	resp, err := http.Get(gw.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(b)) != `{"status":"ok"}` {
		t.Fatalf("health: %d %s", resp.StatusCode, b)
	}
}

func TestE2EVersionAndMetrics(t *testing.T) {
	ol := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	})
	gw := newGateway(t, ol.URL+"/api/generate", 5*time.Second)

	resp, err := http.Get(gw.URL + "/version")
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	var v api.VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	_ = resp.Body.Close()
	if v.Version != "1.2.3" || v.InstanceID != "inst-1" {
		t.Fatalf("version %+v", v)
	}

	if status, _ := post(t, gw.URL, `{"model":"metrics-model","prompt":"Hello"}`); status != http.StatusOK {
		t.Fatalf("generate status %d", status)
	}
	resp, err = http.Get(gw.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(b), `llmgate_generate_requests_total{model="metrics-model",outcome="success"} 1`) {
		t.Fatalf("metrics missing generate counter:\n%s", b)
	}
	if !strings.Contains(string(b), `llmgate_build_info`) {
		t.Fatalf("metrics missing build info")
	}
}

func TestE2EMetricsOnDedicatedListener(t *testing.T) {
	cfg := config.GatewayConfig{GenerateURL: "http://127.0.0.1:1/api/generate", RequestTimeout: time.Second, MetricsAddr: "127.0.0.1:0"}
	s := New(cfg, ollama.New(cfg.GenerateURL, cfg.RequestTimeout), api.MustValidator(), api.VersionInfo{})
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics off the public router, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics handler status %d", rr.Code)
	}
}

func TestE2ECORS(t *testing.T) {
	cfg := config.GatewayConfig{GenerateURL: "http://127.0.0.1:1/api/generate", RequestTimeout: time.Second, AllowedOrigins: []string{"http://app.example"}}
	s := New(cfg, ollama.New(cfg.GenerateURL, cfg.RequestTimeout), api.MustValidator(), api.VersionInfo{})
	req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Fatalf("allow origin %q", got)
	}
}

func TestE2EUnknownRoute(t *testing.T) {
	gw := newGateway(t, "http://127.0.0.1:1/api/generate", time.Second)
	resp, err := http.Get(gw.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || detail(t, b) != "Not Found" {
		t.Fatalf("unexpected: %d %s", resp.StatusCode, b)
	}
}
