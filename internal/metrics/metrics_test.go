package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordFetch("scraperapi", true, "", 300*time.Millisecond)
	RecordFetch("direct", false, "timeout", 2*time.Second)
	RecordSearch(true)
	StreamEventsTotal.WithLabelValues("open").Inc()
	AdmissionRejectedTotal.Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	output := string(body)

	for _, want := range []string{
		`scout_provider_fetch_total{code="",outcome="ok",provider="scraperapi"}`,
		`scout_provider_fetch_total{code="timeout",outcome="err",provider="direct"}`,
		`scout_provider_fetch_duration_seconds_bucket`,
		`scout_searches_total{found="true"}`,
		`scout_stream_events_total{kind="open"}`,
		`scout_admission_rejected_total`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output", want)
		}
	}
}
