package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordInspectionIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(InspectionsTotal.WithLabelValues("widget-a", "pass"))
	RecordInspection("widget-a", "pass")
	after := testutil.ToFloat64(InspectionsTotal.WithLabelValues("widget-a", "pass"))

	if after != before+1 {
		t.Errorf("expected counter to increment by 1, got %v -> %v", before, after)
	}
}

func TestSetQueueDepthAndActiveSessions(t *testing.T) {
	SetQueueDepth(7)
	if got := testutil.ToFloat64(QueueDepth); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}

	SetActiveSessions(3)
	if got := testutil.ToFloat64(ActiveSessions); got != 3 {
		t.Errorf("active sessions = %v, want 3", got)
	}
}

func TestRecordGoldenPromotionAndLinking(t *testing.T) {
	before := testutil.ToFloat64(GoldenPromotionsTotal.WithLabelValues("widget-a"))
	RecordGoldenPromotion("widget-a")
	after := testutil.ToFloat64(GoldenPromotionsTotal.WithLabelValues("widget-a"))
	if after != before+1 {
		t.Errorf("expected golden promotion counter to increment")
	}

	RecordLinkingRequest("cache_hit")
	if got := testutil.ToFloat64(LinkingRequestsTotal.WithLabelValues("cache_hit")); got < 1 {
		t.Errorf("expected linking counter to be recorded")
	}
}
