package observability

import (
	"testing"
	"time"

	"github.com/danmuck/convoctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordControlPlane("join", 409, 24*time.Millisecond)
	RecordControlPlane("leave", 0, time.Millisecond)
	RecordStartOutcome("started")
	RecordRetryScheduled("stale")

	SetAgentJoined(true)
	if got := testutil.ToFloat64(agentJoined); got != 1 {
		t.Fatalf("expected joined gauge 1, got %v", got)
	}
	SetAgentJoined(false)
	if got := testutil.ToFloat64(agentJoined); got != 0 {
		t.Fatalf("expected joined gauge 0, got %v", got)
	}
	if got := testutil.ToFloat64(controlPlaneRequests.WithLabelValues("join", "409")); got < 1 {
		t.Fatalf("expected join/409 counter recorded, got %v", got)
	}
}
