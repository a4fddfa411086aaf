package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrDuplicateOrder is returned when a tracker already exists for an order.
var ErrDuplicateOrder = errors.New("tracker already exists for order")

// ErrTrackerNotFound is returned when no tracker matches the order ID.
var ErrTrackerNotFound = errors.New("tracker not found")

const uniqueViolation = "23505"

// Repository handles database operations for review trackers.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new tracker repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateTracker inserts a tracker and its four milestone slots in one
// transaction. Returns ErrDuplicateOrder if the order is already tracked.
func (r *Repository) CreateTracker(ctx context.Context, t *Tracker) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertTracker := `
		INSERT INTO trackers (
			id, order_id, customer_email, customer_name,
			product_name, product_url, review_url,
			submission_date, status, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, insertTracker,
		t.ID,
		t.OrderID,
		t.CustomerEmail,
		t.CustomerName,
		t.ProductName,
		t.ProductURL,
		t.ReviewURL,
		t.SubmissionDate,
		t.Status,
		t.IsActive,
	).Scan(&t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateOrder
		}
		r.logger.Error("failed to create tracker",
			zap.Error(err),
			zap.String("order_id", t.OrderID),
		)
		return fmt.Errorf("insert tracker: %w", err)
	}

	insertMilestone := `
		INSERT INTO tracker_milestones (order_id, offset_days, scheduled_date, sent)
		VALUES ($1, $2, $3, false)
	`
	for _, offset := range MilestoneOffsets {
		m := t.Milestones[offset]
		if _, err := tx.Exec(ctx, insertMilestone, t.OrderID, m.OffsetDays, m.ScheduledDate); err != nil {
			return fmt.Errorf("insert milestone %d: %w", offset, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("tracker created",
		zap.String("order_id", t.OrderID),
		zap.Time("submission_date", t.SubmissionDate),
	)

	return nil
}

// GetTracker retrieves a tracker and its milestone slots by order ID.
func (r *Repository) GetTracker(ctx context.Context, orderID string) (*Tracker, error) {
	query := `
		SELECT
			id, order_id, customer_email, customer_name,
			product_name, product_url, review_url,
			submission_date, status, is_active, created_at, updated_at
		FROM trackers
		WHERE order_id = $1
	`

	var t Tracker
	err := r.db.Pool().QueryRow(ctx, query, orderID).Scan(
		&t.ID,
		&t.OrderID,
		&t.CustomerEmail,
		&t.CustomerName,
		&t.ProductName,
		&t.ProductURL,
		&t.ReviewURL,
		&t.SubmissionDate,
		&t.Status,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, ErrTrackerNotFound
	}

	if err != nil {
		r.logger.Error("failed to get tracker",
			zap.Error(err),
			zap.String("order_id", orderID),
		)
		return nil, fmt.Errorf("query tracker: %w", err)
	}

	if err := r.loadMilestones(ctx, &t); err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *Repository) loadMilestones(ctx context.Context, t *Tracker) error {
	query := `
		SELECT offset_days, scheduled_date, sent, sent_at, last_error, provider_message_id
		FROM tracker_milestones
		WHERE order_id = $1
		ORDER BY offset_days ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, t.OrderID)
	if err != nil {
		return fmt.Errorf("query milestones: %w", err)
	}
	defer rows.Close()

	t.Milestones = make(map[int]*Milestone, len(MilestoneOffsets))
	for rows.Next() {
		var m Milestone
		err := rows.Scan(
			&m.OffsetDays,
			&m.ScheduledDate,
			&m.Sent,
			&m.SentAt,
			&m.LastError,
			&m.ProviderMessageID,
		)
		if err != nil {
			return fmt.Errorf("scan milestone: %w", err)
		}
		t.Milestones[m.OffsetDays] = &m
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate milestones: %w", err)
	}

	return nil
}

// FindDueTrackers selects active pending trackers that have at least one
// unsent milestone scheduled within [windowStart, windowEnd), ordered by
// creation time, capped at limit.
func (r *Repository) FindDueTrackers(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]*Tracker, error) {
	query := `
		SELECT DISTINCT t.order_id, t.created_at
		FROM trackers t
		JOIN tracker_milestones m ON m.order_id = t.order_id
		WHERE t.is_active = true
		  AND t.status = $1
		  AND m.sent = false
		  AND m.scheduled_date >= $2
		  AND m.scheduled_date < $3
		ORDER BY t.created_at ASC
		LIMIT $4
	`

	rows, err := r.db.Pool().Query(ctx, query, StatusPending, windowStart, windowEnd, limit)
	if err != nil {
		return nil, fmt.Errorf("query due trackers: %w", err)
	}

	var orderIDs []string
	for rows.Next() {
		var orderID string
		var createdAt time.Time
		if err := rows.Scan(&orderID, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due tracker: %w", err)
		}
		orderIDs = append(orderIDs, orderID)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due trackers: %w", err)
	}

	trackers := make([]*Tracker, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		t, err := r.GetTracker(ctx, orderID)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, t)
	}

	return trackers, nil
}

// MarkMilestoneSent records a confirmed delivery for one slot. The guard
// on sent=false keeps a concurrent pass from overwriting an earlier
// success; losing the race is not an error (at-least-once delivery).
func (r *Repository) MarkMilestoneSent(ctx context.Context, orderID string, offsetDays int, sentAt time.Time, providerMessageID string) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	update := `
		UPDATE tracker_milestones
		SET sent = true, sent_at = $1, last_error = NULL, provider_message_id = $2
		WHERE order_id = $3 AND offset_days = $4 AND sent = false
	`

	result, err := tx.Exec(ctx, update, sentAt, providerMessageID, orderID, offsetDays)
	if err != nil {
		return fmt.Errorf("update milestone: %w", err)
	}
	if result.RowsAffected() == 0 {
		if exists, err := r.milestoneExists(ctx, tx, orderID, offsetDays); err != nil {
			return err
		} else if !exists {
			return ErrTrackerNotFound
		}
		// already sent by another pass
	}

	if err := r.touchTracker(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("milestone marked sent",
		zap.String("order_id", orderID),
		zap.Int("offset_days", offsetDays),
		zap.String("provider_message_id", providerMessageID),
	)

	return nil
}

// RecordMilestoneFailure stores the most recent failure reason on a slot,
// leaving it unsent so a later pass retries.
func (r *Repository) RecordMilestoneFailure(ctx context.Context, orderID string, offsetDays int, errMsg string) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	update := `
		UPDATE tracker_milestones
		SET last_error = $1
		WHERE order_id = $2 AND offset_days = $3 AND sent = false
	`

	if _, err := tx.Exec(ctx, update, errMsg, orderID, offsetDays); err != nil {
		return fmt.Errorf("update milestone failure: %w", err)
	}

	if err := r.touchTracker(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// UpdateStatus transitions a tracker to the target status and keeps
// is_active in sync. Re-applying the current status is a no-op success.
func (r *Repository) UpdateStatus(ctx context.Context, orderID, status string) error {
	query := `
		UPDATE trackers
		SET status = $1, is_active = $2, updated_at = NOW()
		WHERE order_id = $3 AND status <> $1
	`

	result, err := r.db.Pool().Exec(ctx, query, status, status == StatusPending, orderID)
	if err != nil {
		r.logger.Error("failed to update tracker status",
			zap.Error(err),
			zap.String("order_id", orderID),
			zap.String("status", status),
		)
		return fmt.Errorf("update tracker status: %w", err)
	}

	if result.RowsAffected() == 0 {
		// either already in the target status (idempotent) or missing
		var exists bool
		err := r.db.Pool().QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM trackers WHERE order_id = $1)`, orderID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check tracker exists: %w", err)
		}
		if !exists {
			return ErrTrackerNotFound
		}
		return nil
	}

	r.logger.Info("tracker status updated",
		zap.String("order_id", orderID),
		zap.String("status", status),
	)

	return nil
}

// ListTrackers retrieves trackers with pagination, newest first.
func (r *Repository) ListTrackers(ctx context.Context, limit, offset int) ([]*Tracker, error) {
	query := `
		SELECT order_id
		FROM trackers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query trackers: %w", err)
	}

	var orderIDs []string
	for rows.Next() {
		var orderID string
		if err := rows.Scan(&orderID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan tracker: %w", err)
		}
		orderIDs = append(orderIDs, orderID)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trackers: %w", err)
	}

	trackers := make([]*Tracker, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		t, err := r.GetTracker(ctx, orderID)
		if err != nil {
			return nil, err
		}
		trackers = append(trackers, t)
	}

	return trackers, nil
}

func (r *Repository) milestoneExists(ctx context.Context, tx pgx.Tx, orderID string, offsetDays int) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracker_milestones WHERE order_id = $1 AND offset_days = $2)`,
		orderID, offsetDays,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check milestone exists: %w", err)
	}
	return exists, nil
}

func (r *Repository) touchTracker(ctx context.Context, tx pgx.Tx, orderID string) error {
	if _, err := tx.Exec(ctx, `UPDATE trackers SET updated_at = NOW() WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("touch tracker: %w", err)
	}
	return nil
}
