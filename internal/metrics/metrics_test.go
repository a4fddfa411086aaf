package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordPass(t *testing.T) {
	RecordPass(0, 2*time.Second)
	RecordPass(3, 8*time.Second)
}

func TestPassAborted(t *testing.T) {
	PassAborted()
}

func TestMilestoneCounters(t *testing.T) {
	MilestoneSent(3)
	MilestoneSent(30)
	MilestoneFailed(7, "transient")
	MilestoneFailed(14, "permanent")
}

func TestTrackerCreated(t *testing.T) {
	TrackerCreated()
}

func TestMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest("GET", "/v1/trackers", nil)
	rec := httptest.NewRecorder()
	Middleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("middleware must pass the status through, got %d", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from metrics endpoint, got %d", rec.Code)
	}
}
