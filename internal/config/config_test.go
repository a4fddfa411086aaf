package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "SCHEDULER_PASS_BUDGET_MS", "SCHEDULER_BATCH_SIZE",
		"SCHEDULER_SEND_DELAY_MS", "SCHEDULER_CATCH_UP",
	} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.PassBudget != 8000*time.Millisecond {
		t.Errorf("expected 8s pass budget, got %v", cfg.PassBudget)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("expected batch size 10, got %d", cfg.BatchSize)
	}
	if cfg.SendDelay != 100*time.Millisecond {
		t.Errorf("expected 100ms send delay, got %v", cfg.SendDelay)
	}
	if !cfg.CatchUp {
		t.Error("catch-up should default to enabled")
	}
}

func TestLoad_SchedulerOverrides(t *testing.T) {
	os.Setenv("SCHEDULER_PASS_BUDGET_MS", "5000")
	os.Setenv("SCHEDULER_BATCH_SIZE", "25")
	os.Setenv("SCHEDULER_SEND_DELAY_MS", "250")
	os.Setenv("SCHEDULER_CATCH_UP", "false")
	defer func() {
		os.Unsetenv("SCHEDULER_PASS_BUDGET_MS")
		os.Unsetenv("SCHEDULER_BATCH_SIZE")
		os.Unsetenv("SCHEDULER_SEND_DELAY_MS")
		os.Unsetenv("SCHEDULER_CATCH_UP")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if cfg.PassBudget != 5*time.Second {
		t.Errorf("expected 5s pass budget, got %v", cfg.PassBudget)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.BatchSize)
	}
	if cfg.SendDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms send delay, got %v", cfg.SendDelay)
	}
	if cfg.CatchUp {
		t.Error("catch-up should be disabled")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PORT", "not-a-port"},
		{"SCHEDULER_PASS_BUDGET_MS", "soon"},
		{"SCHEDULER_CATCH_UP", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			os.Setenv(tt.key, tt.value)
			defer os.Unsetenv(tt.key)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}
