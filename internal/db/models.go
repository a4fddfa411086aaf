package db

import (
	"time"

	"github.com/google/uuid"
)

// Tracker represents one submission's reminder-email schedule and state.
type Tracker struct {
	ID             uuid.UUID          `json:"id"`
	OrderID        string             `json:"order_id"`
	CustomerEmail  string             `json:"customer_email"`
	CustomerName   string             `json:"customer_name"`
	ProductName    string             `json:"product_name"`
	ProductURL     string             `json:"product_url"`
	ReviewURL      string             `json:"review_url"`
	SubmissionDate time.Time          `json:"submission_date"`
	Milestones     map[int]*Milestone `json:"milestones"`
	Status         string             `json:"status"`
	IsActive       bool               `json:"is_active"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Milestone is one of the four offset-based reminder slots.
type Milestone struct {
	OffsetDays        int        `json:"offset_days"`
	ScheduledDate     time.Time  `json:"scheduled_date"`
	Sent              bool       `json:"sent"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty"`
}

// Status constants
const (
	StatusPending    = "pending"
	StatusReviewed   = "reviewed"
	StatusUnreviewed = "unreviewed"
	StatusCancelled  = "cancelled"
)

// MilestoneOffsets lists the reminder offsets in ascending order.
// Scheduling priority iterates them descending (day 30 first).
var MilestoneOffsets = []int{3, 7, 14, 30}

// ValidStatus reports whether s is a known tracker status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusReviewed, StatusUnreviewed, StatusCancelled:
		return true
	}
	return false
}

// NewTracker builds a pending tracker with all four milestone dates
// derived from the submission date at date granularity.
func NewTracker(orderID, email, name, product, productURL, reviewURL string, submissionDate time.Time) *Tracker {
	day := StartOfDayUTC(submissionDate)
	milestones := make(map[int]*Milestone, len(MilestoneOffsets))
	for _, offset := range MilestoneOffsets {
		milestones[offset] = &Milestone{
			OffsetDays:    offset,
			ScheduledDate: day.AddDate(0, 0, offset),
		}
	}

	return &Tracker{
		ID:             uuid.New(),
		OrderID:        orderID,
		CustomerEmail:  email,
		CustomerName:   name,
		ProductName:    product,
		ProductURL:     productURL,
		ReviewURL:      reviewURL,
		SubmissionDate: submissionDate,
		Milestones:     milestones,
		Status:         StatusPending,
		IsActive:       true,
	}
}

// NextDueMilestone picks the single milestone to attempt this pass:
// the highest unsent offset whose scheduled date falls in
// [windowStart, windowEnd). Returns nil when nothing qualifies.
func (t *Tracker) NextDueMilestone(windowStart, windowEnd time.Time) *Milestone {
	for i := len(MilestoneOffsets) - 1; i >= 0; i-- {
		m := t.Milestones[MilestoneOffsets[i]]
		if m == nil || m.Sent {
			continue
		}
		if !m.ScheduledDate.Before(windowStart) && m.ScheduledDate.Before(windowEnd) {
			return m
		}
	}
	return nil
}

// FinalMilestoneSent reports whether the day-30 slot has been delivered.
func (t *Tracker) FinalMilestoneSent() bool {
	last := MilestoneOffsets[len(MilestoneOffsets)-1]
	m := t.Milestones[last]
	return m != nil && m.Sent
}

// StartOfDayUTC truncates ts to the UTC day boundary containing it.
func StartOfDayUTC(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
