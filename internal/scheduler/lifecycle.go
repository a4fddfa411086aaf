package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kvenkat-dev/reviewloop/internal/db"
)

// closeUnreviewed moves a tracker out of active scheduling after its
// final milestone has been delivered with no review signal.
func (s *Service) closeUnreviewed(ctx context.Context, tracker *db.Tracker) error {
	if err := s.store.UpdateStatus(ctx, tracker.OrderID, db.StatusUnreviewed); err != nil {
		return err
	}
	tracker.Status = db.StatusUnreviewed
	tracker.IsActive = false

	s.logger.Info("tracker closed as unreviewed",
		zap.String("order_id", tracker.OrderID),
	)

	return nil
}

// MarkReviewed records an external review signal. Allowed from pending
// or unreviewed; repeating the transition is a no-op success.
func (s *Service) MarkReviewed(ctx context.Context, tracker *db.Tracker) error {
	switch tracker.Status {
	case db.StatusPending, db.StatusUnreviewed, db.StatusReviewed:
	default:
		return fmt.Errorf("cannot mark %s tracker as reviewed", tracker.Status)
	}

	if err := s.store.UpdateStatus(ctx, tracker.OrderID, db.StatusReviewed); err != nil {
		return err
	}
	tracker.Status = db.StatusReviewed
	tracker.IsActive = false
	return nil
}

// Cancel administratively stops all further scheduling for a tracker.
// Allowed from any status; repeating it is a no-op success.
func (s *Service) Cancel(ctx context.Context, tracker *db.Tracker) error {
	if err := s.store.UpdateStatus(ctx, tracker.OrderID, db.StatusCancelled); err != nil {
		return err
	}
	tracker.Status = db.StatusCancelled
	tracker.IsActive = false
	return nil
}
