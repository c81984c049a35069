package metrics

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrementPerLabel(t *testing.T) {
	before := testutil.ToFloat64(TicksProcessed.WithLabelValues("unit-test"))

	TicksProcessed.WithLabelValues("unit-test").Inc()
	TicksProcessed.WithLabelValues("unit-test").Inc()

	if got := testutil.ToFloat64(TicksProcessed.WithLabelValues("unit-test")); got != before+2 {
		t.Errorf("TicksProcessed{unit-test} = %v, want %v", got, before+2)
	}
}

func TestSignalsRejectedLabelsByStageAndReason(t *testing.T) {
	before := testutil.ToFloat64(SignalsRejected.WithLabelValues("validator", "invalid_price"))

	SignalsRejected.WithLabelValues("validator", "invalid_price").Inc()

	if got := testutil.ToFloat64(SignalsRejected.WithLabelValues("validator", "invalid_price")); got != before+1 {
		t.Errorf("SignalsRejected{validator,invalid_price} = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(SignalsRejected.WithLabelValues("risk", "invalid_price")); got == before+1 {
		t.Error("incrementing one (stage, reason) pair leaked into a different one")
	}
}

func TestServerServesMetricsAndShutsDown(t *testing.T) {
	TicksProcessed.WithLabelValues("server-test").Inc()

	srv := NewServer("127.0.0.1:0")
	errCh := make(chan error, 1)
	srv.Start(errCh)
	defer srv.Shutdown(context.Background())

	// Server does not report which port the OS picked for ":0", so exercise
	// the handler directly instead of dialing a port.
	req, err := http.NewRequest(http.MethodGet, "/metrics", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	rec := &responseRecorder{headers: http.Header{}}
	Handler().ServeHTTP(rec, req)

	if rec.status != 0 && rec.status != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.status, http.StatusOK)
	}
	if !strings.Contains(rec.body, "coreengine_ticks_processed_total") {
		t.Error("expected exposition format to include coreengine_ticks_processed_total")
	}

	select {
	case err := <-errCh:
		t.Fatalf("unexpected server error: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

type responseRecorder struct {
	headers http.Header
	status  int
	body    string
}

func (r *responseRecorder) Header() http.Header { return r.headers }
func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body += string(b)
	return len(b), nil
}
func (r *responseRecorder) WriteHeader(status int) { r.status = status }
