package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	set := NewCollector()

	c := set.Counter("test_total", "a counter")
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("expected 5, got %d", c.Value())
	}

	// Same name returns the same counter.
	if set.Counter("test_total", "a counter") != c {
		t.Error("expected registered counter to be reused")
	}

	g := set.Gauge("test_clients", "a gauge")
	g.Set(3)
	g.Inc()
	g.Dec()
	if g.Value() != 3 {
		t.Errorf("expected 3, got %d", g.Value())
	}
}

func TestHandlerRendersTextFormat(t *testing.T) {
	set := NewCollector()
	set.Counter("zz_last_total", "ordered last").Inc()
	set.Counter("aa_first_total", "ordered first").Add(7)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	set.Handler()(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "# HELP aa_first_total ordered first") {
		t.Error("missing HELP line")
	}
	if !strings.Contains(body, "aa_first_total 7") {
		t.Error("missing counter sample")
	}
	if strings.Index(body, "aa_first_total") > strings.Index(body, "zz_last_total") {
		t.Error("expected output sorted by metric name")
	}
}
