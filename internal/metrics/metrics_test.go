package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return pb.GetCounter().GetValue()
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/health", "200", time.Millisecond)
	m.ObserveEngine("submit", "wf", "ok", time.Millisecond)
	m.ArtifactTransition("clip", "completed")
	m.FrameOperation("compare", "ok")
	m.LLMRequest("ok")
	m.EventPublished("artifact.completed", "ok")
	m.RefreshTask("keyframe", "failed")
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.ObserveEngine("submit", "text-to-image-v1", "ok", 10*time.Millisecond)
	m.ObserveEngine("submit", "text-to-image-v1", "ok", 10*time.Millisecond)
	m.ArtifactTransition("keyframe", "failed")

	if got := counterValue(t, m.EngineRequestTotal.WithLabelValues("submit", "text-to-image-v1", "ok")); got != 2 {
		t.Errorf("engine submit count = %v, want 2", got)
	}
	if got := counterValue(t, m.ArtifactTransitionTotal.WithLabelValues("keyframe", "failed")); got != 1 {
		t.Errorf("keyframe failed count = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)
	m.LLMRequest("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "studio_llm_requests_total") {
		t.Errorf("metrics output missing studio_llm_requests_total:\n%s", body)
	}
}

func TestOutcome(t *testing.T) {
	if Outcome(nil) != "ok" || Outcome(errors.New("x")) != "error" {
		t.Error("Outcome() labels are wrong")
	}
}
