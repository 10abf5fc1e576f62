package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
service:
  name: fulfillment-a
ledger:
  driver: postgres
  database_url: postgres://file/db
saga:
  hold: 15m
kafka:
  brokers: [k1:9092]
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("KAFKA_BROKERS", "k2:9092, k3:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service.Name != "fulfillment-a" {
		t.Fatalf("file value lost: %q", cfg.Service.Name)
	}
	if cfg.Saga.Hold != 15*time.Minute {
		t.Fatalf("expected 15m hold, got %s", cfg.Saga.Hold)
	}
	if cfg.Ledger.DatabaseURL != "postgres://env/db" {
		t.Fatalf("env must override file, got %q", cfg.Ledger.DatabaseURL)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k3:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Saga.PaymentTimeout != 10*time.Second {
		t.Fatalf("default lost for unset field: %s", cfg.Saga.PaymentTimeout)
	}
}

func TestValidateJoinsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Driver = DriverPostgres
	cfg.SagaStore.Driver = "etcd"
	cfg.Payment.SuccessRate = 2

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"ledger.database_url", "saga_store.driver", "payment.success_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	env := map[string]string{"PAYMENT_SUCCESS_RATE": "high", "SWEEP_INTERVAL": "soon"}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if err == nil || !strings.Contains(err.Error(), "PAYMENT_SUCCESS_RATE") || !strings.Contains(err.Error(), "SWEEP_INTERVAL") {
		t.Fatalf("expected both keys reported, got %v", err)
	}
}

func TestSagaRecoveryFromEnv(t *testing.T) {
	env := map[string]string{"SAGA_RECOVER_AFTER": "45m", "SAGA_RECOVER_EVERY": "30s"}
	cfg := Default()
	if err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}
	if cfg.Saga.RecoverAfter != 45*time.Minute || cfg.Saga.RecoverEvery != 30*time.Second {
		t.Fatalf("unexpected recovery settings %s / %s", cfg.Saga.RecoverAfter, cfg.Saga.RecoverEvery)
	}

	cfg.Saga.RecoverEvery = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "saga.recover_every") {
		t.Fatalf("expected saga.recover_every rejected, got %v", err)
	}
}
