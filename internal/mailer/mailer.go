// Package mailer abstracts outbound email delivery for reminder sends.
package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ErrorKind classifies a send failure. The scheduler records both kinds
// identically today; the split exists so retry policy can diverge later
// without changing the wire contract.
type ErrorKind int

const (
	Transient ErrorKind = iota
	Permanent
)

func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// SendError wraps a delivery failure with its classification.
type SendError struct {
	Kind ErrorKind
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send failure: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable send failure.
func NewTransient(err error) *SendError {
	return &SendError{Kind: Transient, Err: err}
}

// NewPermanent wraps err as a non-retryable send failure.
func NewPermanent(err error) *SendError {
	return &SendError{Kind: Permanent, Err: err}
}

// Message is one outbound reminder email. Tags travel with the message
// to the provider for reconciliation (order ID and milestone offset).
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	Tags     map[string]string
}

// Mailer sends a message and returns the provider's message ID.
type Mailer interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// LogMailer logs instead of sending (development and tests).
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg *Message) (string, error) {
	m.logger.Info("email logged instead of sent",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Any("tags", msg.Tags),
	)
	return fmt.Sprintf("log-%s-%s", msg.Tags["order_id"], msg.Tags["offset_days"]), nil
}
