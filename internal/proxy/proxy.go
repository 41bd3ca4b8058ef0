// internal/proxy/proxy.go

// Package proxy implements the thin pass-through boundary to the external
// analysis backends. It forwards method, path, query, and body verbatim and
// relays the backend's status and payload; the only logic here is
// content-type sniffing and shaping transport failures into a generic 500.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/user/threatsight/internal/metrics"
)

// Handler forwards requests under a path prefix to one backend base URL.
type Handler struct {
	name   string
	prefix string
	base   *url.URL
	client *http.Client
}

// NewHandler creates a proxy for the named backend. prefix is stripped from
// the inbound path before forwarding (e.g. "/backend/fraud").
func NewHandler(name, prefix, baseURL string) (*Handler, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must be absolute", baseURL)
	}
	return &Handler{
		name:   name,
		prefix: prefix,
		base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Prefix returns the path prefix this proxy is mounted under.
func (h *Handler) Prefix() string {
	return h.prefix
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.ProxyRequests.Inc()

	target := *h.base
	target.Path = strings.TrimSuffix(h.base.Path, "/") + "/" + strings.TrimPrefix(
		strings.TrimPrefix(r.URL.Path, h.prefix), "/")
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		h.fail(w, "invalid upstream request", err)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.fail(w, "backend unreachable", err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.fail(w, "read backend response", err)
		return
	}

	if json.Valid(body) {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

// fail surfaces any forwarding problem as a generic 500 with details.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	metrics.ProxyErrors.Inc()
	slog.Error("proxy request failed", "backend", h.name, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   msg,
		"details": err.Error(),
	})
}
