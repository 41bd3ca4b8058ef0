// internal/proxy/proxy_test.go
package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestProxyForwardsVerbatim(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer backend.Close()

	h, err := NewHandler("fraud", "/backend/fraud", backend.URL)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/backend/fraud/score?entity=42",
		strings.NewReader(`{"amount":100}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if gotMethod != http.MethodPost {
		t.Errorf("method: got %s", gotMethod)
	}
	if gotPath != "/score" {
		t.Errorf("path: got %s", gotPath)
	}
	if gotQuery != "entity=42" {
		t.Errorf("query: got %s", gotQuery)
	}
	if gotBody != `{"amount":100}` {
		t.Errorf("body: got %s", gotBody)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %s", ct)
	}
}

func TestProxyRelaysPlainText(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream broke"))
	}))
	defer backend.Close()

	h, err := NewHandler("graph", "/backend/graph", backend.URL)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backend/graph/health", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status should pass through, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %s", ct)
	}
	if rec.Body.String() != "upstream broke" {
		t.Errorf("body: got %s", rec.Body.String())
	}
}

func TestProxyShapesTransportFailure(t *testing.T) {
	// Point at a closed port.
	h, err := NewHandler("fraud", "/backend/fraud", "http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backend/fraud/score", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if body["error"] == "" || body["details"] == "" {
		t.Errorf("expected error and details fields, got %v", body)
	}
}

func TestProxyRejectsRelativeBase(t *testing.T) {
	if _, err := NewHandler("x", "/backend/x", "not-a-url"); err == nil {
		t.Error("expected error for relative base URL")
	}
}
