package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kvenkat-dev/reviewloop/internal/db"
	"github.com/kvenkat-dev/reviewloop/internal/scheduler"
)

type stubRepo struct {
	trackers map[string]*db.Tracker
}

func newStubRepo() *stubRepo {
	return &stubRepo{trackers: make(map[string]*db.Tracker)}
}

func (r *stubRepo) CreateTracker(_ context.Context, t *db.Tracker) error {
	if _, exists := r.trackers[t.OrderID]; exists {
		return db.ErrDuplicateOrder
	}
	r.trackers[t.OrderID] = t
	return nil
}

func (r *stubRepo) GetTracker(_ context.Context, orderID string) (*db.Tracker, error) {
	t, ok := r.trackers[orderID]
	if !ok {
		return nil, db.ErrTrackerNotFound
	}
	return t, nil
}

func (r *stubRepo) ListTrackers(_ context.Context, limit, offset int) ([]*db.Tracker, error) {
	var out []*db.Tracker
	for _, t := range r.trackers {
		out = append(out, t)
	}
	return out, nil
}

type stubScheduler struct {
	summary   *scheduler.PassSummary
	runErr    error
	runCalls  int
	reviewed  []string
	cancelled []string
}

func (s *stubScheduler) RunPass(_ context.Context) (*scheduler.PassSummary, error) {
	s.runCalls++
	if s.runErr != nil {
		return nil, s.runErr
	}
	return s.summary, nil
}

func (s *stubScheduler) MarkReviewed(_ context.Context, t *db.Tracker) error {
	s.reviewed = append(s.reviewed, t.OrderID)
	t.Status = db.StatusReviewed
	t.IsActive = false
	return nil
}

func (s *stubScheduler) Cancel(_ context.Context, t *db.Tracker) error {
	s.cancelled = append(s.cancelled, t.OrderID)
	t.Status = db.StatusCancelled
	t.IsActive = false
	return nil
}

type stubLock struct {
	held bool
	err  error
}

func (l *stubLock) Acquire(_ context.Context) (bool, func(), error) {
	if l.err != nil {
		return false, func() {}, l.err
	}
	return !l.held, func() {}, nil
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/trackers", h.CreateTracker)
	r.Get("/v1/trackers/{orderID}", h.GetTracker)
	r.Patch("/v1/trackers/{orderID}/status", h.UpdateTrackerStatus)
	r.Post("/v1/scheduler/run", h.RunScheduledPass)
	return r
}

func createBody(orderID string) []byte {
	body, _ := json.Marshal(CreateTrackerRequest{
		OrderID:        orderID,
		CustomerEmail:  "jo@example.com",
		CustomerName:   "Jo",
		ProductName:    "Trail Camera",
		ProductURL:     "https://shop.example/cam",
		ReviewURL:      "https://shop.example/review/42",
		SubmissionDate: "2024-01-01T00:00:00Z",
	})
	return body
}

func TestCreateTracker(t *testing.T) {
	repo := newStubRepo()
	h := NewHandler(zap.NewNop(), repo, &stubScheduler{}, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest("POST", "/v1/trackers", bytes.NewReader(createBody("order-1")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var tracker db.Tracker
	if err := json.NewDecoder(rec.Body).Decode(&tracker); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if tracker.OrderID != "order-1" || tracker.Status != db.StatusPending {
		t.Errorf("unexpected tracker: %+v", tracker)
	}
	if len(tracker.Milestones) != 4 {
		t.Errorf("expected 4 milestone slots, got %d", len(tracker.Milestones))
	}
}

func TestCreateTracker_DuplicateOrderConflicts(t *testing.T) {
	repo := newStubRepo()
	h := NewHandler(zap.NewNop(), repo, &stubScheduler{}, nil)
	router := newTestRouter(h)

	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest("POST", "/v1/trackers", bytes.NewReader(createBody("order-1")))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, rec.Code)
		}
	}
}

func TestCreateTracker_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing fields", `{"order_id":"x"}`},
		{"bad email", `{"order_id":"x","customer_email":"nope","customer_name":"Jo","product_name":"Cam"}`},
		{"bad date", `{"order_id":"x","customer_email":"jo@example.com","customer_name":"Jo","product_name":"Cam","submission_date":"yesterday"}`},
	}

	h := NewHandler(zap.NewNop(), newStubRepo(), &stubScheduler{}, nil)
	router := newTestRouter(h)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/trackers", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetTracker_NotFound(t *testing.T) {
	h := NewHandler(zap.NewNop(), newStubRepo(), &stubScheduler{}, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest("GET", "/v1/trackers/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateTrackerStatus(t *testing.T) {
	repo := newStubRepo()
	sched := &stubScheduler{}
	h := NewHandler(zap.NewNop(), repo, sched, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest("POST", "/v1/trackers", bytes.NewReader(createBody("order-1")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %d", rec.Code)
	}

	req = httptest.NewRequest("PATCH", "/v1/trackers/order-1/status", bytes.NewBufferString(`{"status":"reviewed"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sched.reviewed) != 1 || sched.reviewed[0] != "order-1" {
		t.Errorf("expected reviewed transition, got %+v", sched)
	}

	req = httptest.NewRequest("PATCH", "/v1/trackers/order-1/status", bytes.NewBufferString(`{"status":"archived"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestRunScheduledPass(t *testing.T) {
	sched := &stubScheduler{summary: &scheduler.PassSummary{Processed: 3, Sent: 2, Failed: 1}}
	h := NewHandler(zap.NewNop(), newStubRepo(), sched, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest("POST", "/v1/scheduler/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var summary scheduler.PassSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Processed != 3 || summary.Sent != 2 || summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestRunScheduledPass_StoreFailure(t *testing.T) {
	sched := &stubScheduler{runErr: errors.New("find due trackers: connection refused")}
	h := NewHandler(zap.NewNop(), newStubRepo(), sched, nil)
	router := newTestRouter(h)

	req := httptest.NewRequest("POST", "/v1/scheduler/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestRunScheduledPass_LockHeld(t *testing.T) {
	sched := &stubScheduler{summary: &scheduler.PassSummary{}}
	h := NewHandler(zap.NewNop(), newStubRepo(), sched, &stubLock{held: true})
	router := newTestRouter(h)

	req := httptest.NewRequest("POST", "/v1/scheduler/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when lock is held, got %d", rec.Code)
	}
	if sched.runCalls != 0 {
		t.Error("pass must not run while the lock is held")
	}
}

func TestRunScheduledPass_LockErrorRunsUnlocked(t *testing.T) {
	sched := &stubScheduler{summary: &scheduler.PassSummary{}}
	h := NewHandler(zap.NewNop(), newStubRepo(), sched, &stubLock{err: errors.New("redis down")})
	router := newTestRouter(h)

	req := httptest.NewRequest("POST", "/v1/scheduler/run", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass to run unlocked, got %d", rec.Code)
	}
	if sched.runCalls != 1 {
		t.Error("pass should have run despite lock error")
	}
}
