package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue extracts a counter's value from a gathered registry.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				matched := false
				for _, lp := range m.GetLabel() {
					if lp.GetName() == k && lp.GetValue() == v {
						matched = true
					}
				}
				if !matched {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s := newTestServer(t, &fakeAnswerer{}, newFakeStore(), func(cfg *Config) {
		cfg.Registry = reg
	})

	// One chat request populates the chat metrics.
	if w := doJSON(t, s, http.MethodPost, "/chat", `{"query":"q"}`); w.Code != http.StatusOK {
		t.Fatalf("chat: expected 200, got %d", w.Code)
	}

	w := doJSON(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "bookqa_chat_requests_total") {
		t.Error("bookqa_chat_requests_total missing from /metrics output")
	}
	if !strings.Contains(body, "bookqa_http_requests_total") {
		t.Error("bookqa_http_requests_total missing from /metrics output")
	}
}

func TestMetrics_ChatOutcomeAndMode(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s := newTestServer(t, &fakeAnswerer{}, newFakeStore(), func(cfg *Config) {
		cfg.Registry = reg
	})

	doJSON(t, s, http.MethodPost, "/chat", `{"query":"q"}`)

	if got := counterValue(t, reg, "bookqa_chat_requests_total", map[string]string{"outcome": outcomeOK}); got != 1 {
		t.Errorf("chat_requests_total{outcome=ok} = %v, want 1", got)
	}
	// fakeAnswerer returns no tool results, so the mode is no_results.
	if got := counterValue(t, reg, "bookqa_chat_mode_total", map[string]string{"mode": "no_results"}); got != 1 {
		t.Errorf("chat_mode_total{mode=no_results} = %v, want 1", got)
	}
}

func TestMetrics_RejectedCounter(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	block := make(chan struct{})
	defer close(block)

	s := newTestServer(t, &fakeAnswerer{block: block}, newFakeStore(), func(cfg *Config) {
		cfg.Registry = reg
		cfg.MaxConcurrentChats = 1
	})

	go doJSON(t, s, http.MethodPost, "/chat", `{"query":"slow"}`)
	for s.slots.InFlight() == 0 {
		time.Sleep(time.Millisecond)
	}

	doJSON(t, s, http.MethodPost, "/chat", `{"query":"rejected"}`)

	if got := counterValue(t, reg, "bookqa_chat_rejected_total", nil); got != 1 {
		t.Errorf("chat_rejected_total = %v, want 1", got)
	}
}
