package mailer

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestLogMailer_Send(t *testing.T) {
	m := NewLogMailer(zap.NewNop())

	id, err := m.Send(context.Background(), &Message{
		To:      "jo@example.com",
		Subject: "How are you liking it?",
		Tags:    map[string]string{"order_id": "order-1", "offset_days": "3"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Error("expected a synthetic message id")
	}
}

func TestSendError_Classification(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  *SendError
		kind ErrorKind
	}{
		{"transient", NewTransient(base), Transient},
		{"permanent", NewPermanent(base), Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, tt.err.Kind)
			}
			if !errors.Is(tt.err, base) {
				t.Error("SendError must unwrap to the cause")
			}

			var se *SendError
			if !errors.As(tt.err, &se) {
				t.Error("errors.As should match *SendError")
			}
		})
	}
}

func TestErrorKind_String(t *testing.T) {
	if Transient.String() != "transient" || Permanent.String() != "permanent" {
		t.Errorf("unexpected kind strings: %s / %s", Transient, Permanent)
	}
}
