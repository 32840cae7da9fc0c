package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/deals")
	t.Setenv("CORS_ORIGINS", "https://homebaseflights.com,https://www.homebaseflights.com")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.AppEnv != "dev" || cfg.Port != 8080 {
		t.Fatalf("неожиданные значения по умолчанию: %+v", cfg)
	}
	if cfg.FlightAPI.CacheTTL != time.Hour {
		t.Fatalf("FLIGHT_CACHE_TTL по умолчанию = %v", cfg.FlightAPI.CacheTTL)
	}
	if cfg.Lifecycle.ReminderDaysBefore != 2 || cfg.Lifecycle.TrialDays != 14 {
		t.Fatalf("неожиданный жизненный цикл: %+v", cfg.Lifecycle)
	}
	if cfg.PG.DSN != "postgres://localhost/deals" || cfg.PG.MaxConns != 5 {
		t.Fatalf("неожиданный PG: %+v", cfg.PG)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("ожидали два origin, получили %v", cfg.CORSOrigins)
	}
}

func TestParseInvalidNumber(t *testing.T) {
	t.Setenv("TRIAL_DAYS", "two weeks")
	if _, err := Parse(); err == nil {
		t.Fatalf("ожидали ошибку разбора")
	}
}
