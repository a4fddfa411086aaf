// Package scheduler implements the time-budgeted reminder dispatch pass.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kvenkat-dev/reviewloop/internal/content"
	"github.com/kvenkat-dev/reviewloop/internal/db"
	"github.com/kvenkat-dev/reviewloop/internal/mailer"
	"github.com/kvenkat-dev/reviewloop/internal/metrics"
)

// TrackerStore is the persistence surface the scheduler needs.
type TrackerStore interface {
	FindDueTrackers(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]*db.Tracker, error)
	MarkMilestoneSent(ctx context.Context, orderID string, offsetDays int, sentAt time.Time, providerMessageID string) error
	RecordMilestoneFailure(ctx context.Context, orderID string, offsetDays int, errMsg string) error
	UpdateStatus(ctx context.Context, orderID, status string) error
}

// ContentResolver renders subject and body for one milestone offset.
type ContentResolver interface {
	Resolve(offsetDays int, data content.TemplateData) (*content.Content, error)
}

// Config bounds one dispatch pass.
type Config struct {
	PassBudget time.Duration // wall-clock ceiling for one pass
	BatchSize  int           // max trackers selected per pass
	SendDelay  time.Duration // pause after each send attempt
	CatchUp    bool          // include overdue unsent slots, not just today's
}

// PassError describes one failed send attempt within a pass.
type PassError struct {
	OrderID    string `json:"order_id"`
	OffsetDays int    `json:"offset_days"`
	Message    string `json:"message"`
}

// PassSummary reports the outcome of one dispatch pass.
type PassSummary struct {
	Processed int         `json:"processed"`
	Attempted int         `json:"attempted"`
	Sent      int         `json:"sent"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	TimedOut  bool        `json:"timed_out"`
	Errors    []PassError `json:"errors,omitempty"`
}

// Service runs bounded dispatch passes over due trackers.
type Service struct {
	store    TrackerStore
	mailer   mailer.Mailer
	resolver ContentResolver
	config   Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a scheduler service. Zero config fields get defaults.
func New(store TrackerStore, m mailer.Mailer, resolver ContentResolver, cfg Config, logger *zap.Logger) *Service {
	if cfg.PassBudget == 0 {
		cfg.PassBudget = 8000 * time.Millisecond
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.SendDelay == 0 {
		cfg.SendDelay = 100 * time.Millisecond
	}

	return &Service{
		store:    store,
		mailer:   m,
		resolver: resolver,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RunPass executes one bounded dispatch pass: select due trackers, send
// at most one milestone email per tracker, record outcomes, and stop
// early when the wall-clock budget is exhausted. Individual send
// failures never fail the pass; only a store failure does.
func (s *Service) RunPass(ctx context.Context) (*PassSummary, error) {
	start := s.now()
	today := db.StartOfDayUTC(start)
	tomorrow := today.AddDate(0, 0, 1)

	windowStart := today
	if s.config.CatchUp {
		windowStart = time.Time{}
	}

	trackers, err := s.store.FindDueTrackers(ctx, windowStart, tomorrow, s.config.BatchSize)
	if err != nil {
		metrics.PassAborted()
		return nil, fmt.Errorf("find due trackers: %w", err)
	}

	summary := &PassSummary{Processed: len(trackers)}

	for i, tracker := range trackers {
		if s.now().Sub(start) > s.config.PassBudget {
			summary.Skipped = len(trackers) - i
			summary.TimedOut = true
			s.logger.Warn("pass budget exhausted",
				zap.Int("skipped", summary.Skipped),
				zap.Duration("budget", s.config.PassBudget),
			)
			break
		}

		milestone := tracker.NextDueMilestone(windowStart, tomorrow)
		if milestone == nil {
			continue
		}

		summary.Attempted++
		if err := s.sendMilestone(ctx, tracker, milestone); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, PassError{
				OrderID:    tracker.OrderID,
				OffsetDays: milestone.OffsetDays,
				Message:    err.Error(),
			})
		} else {
			summary.Sent++
		}

		s.pause(ctx)

		if tracker.FinalMilestoneSent() && tracker.Status == db.StatusPending {
			if err := s.closeUnreviewed(ctx, tracker); err != nil {
				s.logger.Warn("failed to close tracker",
					zap.Error(err),
					zap.String("order_id", tracker.OrderID),
				)
			}
		}
	}

	metrics.RecordPass(summary.Skipped, s.now().Sub(start))

	s.logger.Info("dispatch pass complete",
		zap.Int("processed", summary.Processed),
		zap.Int("attempted", summary.Attempted),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("timed_out", summary.TimedOut),
	)

	return summary, nil
}

// sendMilestone resolves content for one slot, sends it, and records the
// outcome atomically. The returned error is informational only; the
// caller tallies it but never aborts the pass.
func (s *Service) sendMilestone(ctx context.Context, tracker *db.Tracker, milestone *db.Milestone) error {
	resolved, err := s.resolver.Resolve(milestone.OffsetDays, content.TemplateData{
		CustomerName: tracker.CustomerName,
		ProductName:  tracker.ProductName,
		ReviewURL:    tracker.ReviewURL,
		ProductURL:   tracker.ProductURL,
	})
	if err != nil {
		err = fmt.Errorf("resolve content: %w", err)
		s.recordFailure(ctx, tracker, milestone, err)
		return err
	}

	msg := &mailer.Message{
		To:       tracker.CustomerEmail,
		ToName:   tracker.CustomerName,
		Subject:  resolved.Subject,
		HTMLBody: resolved.HTMLBody,
		Tags: map[string]string{
			"order_id":    tracker.OrderID,
			"offset_days": strconv.Itoa(milestone.OffsetDays),
		},
	}

	providerID, err := s.mailer.Send(ctx, msg)
	if err != nil {
		s.recordFailure(ctx, tracker, milestone, err)
		return err
	}

	sentAt := s.now()
	if err := s.store.MarkMilestoneSent(ctx, tracker.OrderID, milestone.OffsetDays, sentAt, providerID); err != nil {
		// the email went out but the slot could not be updated; the next
		// pass may resend, which the at-least-once contract tolerates
		return fmt.Errorf("mark milestone sent: %w", err)
	}

	milestone.Sent = true
	milestone.SentAt = &sentAt
	milestone.LastError = nil
	milestone.ProviderMessageID = &providerID

	metrics.MilestoneSent(milestone.OffsetDays)

	s.logger.Info("milestone email sent",
		zap.String("order_id", tracker.OrderID),
		zap.Int("offset_days", milestone.OffsetDays),
		zap.String("provider_message_id", providerID),
	)

	return nil
}

func (s *Service) recordFailure(ctx context.Context, tracker *db.Tracker, milestone *db.Milestone, sendErr error) {
	var kind string
	var se *mailer.SendError
	if errors.As(sendErr, &se) {
		kind = se.Kind.String()
	} else {
		kind = "unclassified"
	}
	metrics.MilestoneFailed(milestone.OffsetDays, kind)

	s.logger.Error("milestone send failed",
		zap.Error(sendErr),
		zap.String("order_id", tracker.OrderID),
		zap.Int("offset_days", milestone.OffsetDays),
		zap.String("error_kind", kind),
	)

	msg := sendErr.Error()
	if err := s.store.RecordMilestoneFailure(ctx, tracker.OrderID, milestone.OffsetDays, msg); err != nil {
		s.logger.Error("failed to record milestone failure",
			zap.Error(err),
			zap.String("order_id", tracker.OrderID),
			zap.Int("offset_days", milestone.OffsetDays),
		)
		return
	}
	milestone.LastError = &msg
}

// pause applies the fixed inter-send delay, cutting it short on
// context cancellation.
func (s *Service) pause(ctx context.Context) {
	timer := time.NewTimer(s.config.SendDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
