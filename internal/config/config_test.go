package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadBusinessDayDefaults(t *testing.T) {
	t.Setenv("BUSINESS_DAY_CUTOFF_HOUR", "")
	t.Setenv("INVOICE_NUMBER_RETRIES", "")
	t.Setenv("OPERATION_TIMEOUT_SECONDS", "")
	t.Setenv("BUSINESS_TIMEZONE", "")

	cfg := Load()
	if cfg.BusinessDayCutoffHour != 2 {
		t.Fatalf("expected cutoff hour 2, got %d", cfg.BusinessDayCutoffHour)
	}
	if cfg.InvoiceNumberRetries != 3 {
		t.Fatalf("expected 3 invoice number retries, got %d", cfg.InvoiceNumberRetries)
	}
	if cfg.OperationTimeout != 15*time.Second {
		t.Fatalf("expected 15s operation timeout, got %s", cfg.OperationTimeout)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("expected UTC location, got %v (%v)", loc, err)
	}
}

func TestLoadRejectsOutOfRangeCutoff(t *testing.T) {
	t.Setenv("BUSINESS_DAY_CUTOFF_HOUR", "27")

	cfg := Load()
	if cfg.BusinessDayCutoffHour != 2 {
		t.Fatalf("expected fallback cutoff hour 2, got %d", cfg.BusinessDayCutoffHour)
	}
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	cfg := Config{BusinessTimezone: "Mars/Olympus_Mons"}
	loc, err := cfg.Location()
	if err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
	if loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
}
