package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kvenkat-dev/reviewloop/internal/db"
	"github.com/kvenkat-dev/reviewloop/internal/metrics"
	"github.com/kvenkat-dev/reviewloop/internal/scheduler"
)

// TrackerRepository defines the tracker persistence operations the API needs.
type TrackerRepository interface {
	CreateTracker(ctx context.Context, t *db.Tracker) error
	GetTracker(ctx context.Context, orderID string) (*db.Tracker, error)
	ListTrackers(ctx context.Context, limit, offset int) ([]*db.Tracker, error)
}

// SchedulerService runs dispatch passes and applies lifecycle transitions.
type SchedulerService interface {
	RunPass(ctx context.Context) (*scheduler.PassSummary, error)
	MarkReviewed(ctx context.Context, tracker *db.Tracker) error
	Cancel(ctx context.Context, tracker *db.Tracker) error
}

// PassLock serializes concurrent pass triggers; may be absent.
type PassLock interface {
	Acquire(ctx context.Context) (bool, func(), error)
}

// CreateTrackerRequest is the submission boundary's payload.
type CreateTrackerRequest struct {
	OrderID        string `json:"order_id"`
	CustomerEmail  string `json:"customer_email"`
	CustomerName   string `json:"customer_name"`
	ProductName    string `json:"product_name"`
	ProductURL     string `json:"product_url"`
	ReviewURL      string `json:"review_url"`
	SubmissionDate string `json:"submission_date,omitempty"` // RFC3339; defaults to now
}

// UpdateStatusRequest carries an admin lifecycle transition.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger    *zap.Logger
	repo      TrackerRepository
	scheduler SchedulerService
	passLock  PassLock // nil if Redis not configured
}

// NewHandler creates a new API handler. passLock may be nil.
func NewHandler(logger *zap.Logger, repo TrackerRepository, sched SchedulerService, passLock PassLock) *Handler {
	return &Handler{
		logger:    logger,
		repo:      repo,
		scheduler: sched,
		passLock:  passLock,
	}
}

// CreateTracker handles POST /v1/trackers. A duplicate order is benign
// at this boundary and reported as a conflict.
func (h *Handler) CreateTracker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateTrackerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.OrderID == "" || req.CustomerEmail == "" || req.CustomerName == "" || req.ProductName == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields",
			"order_id, customer_email, customer_name, and product_name are required")
		return
	}

	if !strings.Contains(req.CustomerEmail, "@") {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid customer_email", "customer_email must be an email address")
		return
	}

	submissionDate := time.Now().UTC()
	if req.SubmissionDate != "" {
		parsed, err := time.Parse(time.RFC3339, req.SubmissionDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid submission_date", "submission_date must be RFC3339")
			return
		}
		submissionDate = parsed
	}

	tracker := db.NewTracker(
		req.OrderID,
		req.CustomerEmail,
		req.CustomerName,
		req.ProductName,
		req.ProductURL,
		req.ReviewURL,
		submissionDate,
	)

	if err := h.repo.CreateTracker(ctx, tracker); err != nil {
		if errors.Is(err, db.ErrDuplicateOrder) {
			h.writeError(w, http.StatusConflict, "already_tracked", "Order is already tracked",
				"a tracker exists for this order_id")
			return
		}
		h.logger.Error("failed to create tracker",
			zap.Error(err),
			zap.String("order_id", req.OrderID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create tracker", "")
		return
	}

	metrics.TrackerCreated()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(tracker)
}

// GetTracker handles GET /v1/trackers/{orderID}
func (h *Handler) GetTracker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "orderID")

	tracker, err := h.repo.GetTracker(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrTrackerNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Tracker not found", "")
			return
		}
		h.logger.Error("failed to get tracker",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get tracker", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(tracker)
}

// ListTrackers handles GET /v1/trackers?limit=20&offset=0
func (h *Handler) ListTrackers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	trackers, err := h.repo.ListTrackers(ctx, limit, offset)
	if err != nil {
		h.logger.Error("failed to list trackers", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list trackers", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"trackers": trackers,
		"limit":    limit,
		"offset":   offset,
		"count":    len(trackers),
	})
}

// UpdateTrackerStatus handles PATCH /v1/trackers/{orderID}/status for
// the admin transitions (reviewed, cancelled). Transitions are
// idempotent: re-applying the current status succeeds.
func (h *Handler) UpdateTrackerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := chi.URLParam(r, "orderID")

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	tracker, err := h.repo.GetTracker(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrTrackerNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Tracker not found", "")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get tracker", "")
		return
	}

	switch req.Status {
	case db.StatusReviewed:
		err = h.scheduler.MarkReviewed(ctx, tracker)
	case db.StatusCancelled:
		err = h.scheduler.Cancel(ctx, tracker)
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid status",
			"status must be reviewed or cancelled")
		return
	}

	if err != nil {
		h.logger.Error("failed to update tracker status",
			zap.Error(err),
			zap.String("order_id", orderID),
			zap.String("status", req.Status),
		)
		h.writeError(w, http.StatusUnprocessableEntity, "invalid_transition", "Status transition rejected", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(tracker)
}

// RunScheduledPass handles POST /v1/scheduler/run, the periodic
// trigger's entry point. Overlapping triggers are serialized through the
// pass lock when Redis is available; a held lock yields a conflict so
// the caller's retry lands after the running pass.
func (h *Handler) RunScheduledPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.passLock != nil {
		acquired, release, err := h.passLock.Acquire(ctx)
		if err != nil {
			h.logger.Warn("pass lock unavailable, running unlocked", zap.Error(err))
		} else if !acquired {
			h.writeError(w, http.StatusConflict, "pass_in_progress", "A dispatch pass is already running", "")
			return
		} else {
			defer release()
		}
	}

	summary, err := h.scheduler.RunPass(ctx)
	if err != nil {
		h.logger.Error("dispatch pass failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "pass_failed", "Dispatch pass aborted", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(summary)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
