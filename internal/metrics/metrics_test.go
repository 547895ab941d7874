package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDispatch(t *testing.T) {
	m := New()

	m.ObserveDispatch("youtube", true, 2*time.Second)
	m.ObserveDispatch("youtube", false, time.Second)
	m.ObserveDispatch("instagram", true, time.Second)

	tests := []struct {
		name     string
		platform string
		result   string
		want     float64
	}{
		{name: "youtubeSuccess", platform: "youtube", result: "success", want: 1},
		{name: "youtubeFailure", platform: "youtube", result: "failure", want: 1},
		{name: "instagramSuccess", platform: "instagram", result: "success", want: 1},
		{name: "instagramFailure", platform: "instagram", result: "failure", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testutil.ToFloat64(m.dispatchTotal.WithLabelValues(tt.platform, tt.result))
			if got != tt.want {
				t.Errorf("dispatch_total{%s,%s} = %v, want %v", tt.platform, tt.result, got, tt.want)
			}
		})
	}
}

func TestObservePass(t *testing.T) {
	m := New()

	m.ObservePass(3)
	m.ObservePass(1)
	m.ObserveScheduledJob("failure")

	if got := testutil.ToFloat64(m.schedulerPasses); got != 2 {
		t.Errorf("passes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.pendingJobs); got != 1 {
		t.Errorf("pending = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.schedulerJobs.WithLabelValues("failure")); got != 1 {
		t.Errorf("jobs{failure} = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveDispatch("youtube", true, time.Second)
	m.ObservePass(1)
	m.ObserveScheduledJob("success")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObservePass(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "reelpost_pending_jobs 4") {
		t.Errorf("metrics output missing pending gauge:\n%s", body)
	}
}
