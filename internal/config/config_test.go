package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.BaseRatePerKm != 3.80 || cfg.AvgSpeedKmh != 25 {
		t.Errorf("fare defaults = %v, %v", cfg.BaseRatePerKm, cfg.AvgSpeedKmh)
	}
	if cfg.CallAnswerDelay != 3*time.Second || cfg.PaymentVerifyDelay != 2500*time.Millisecond {
		t.Errorf("delay defaults = %v, %v", cfg.CallAnswerDelay, cfg.PaymentVerifyDelay)
	}
	if cfg.KafkaTopic != "ride-events" {
		t.Errorf("KafkaTopic = %q", cfg.KafkaTopic)
	}
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("FARE_BASE_RATE_PER_KM", "4.25")
	t.Setenv("CALL_ANSWER_DELAY", "150ms")
	t.Setenv("MIGRATE", "TRUE")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.BaseRatePerKm != 4.25 {
		t.Errorf("BaseRatePerKm = %v", cfg.BaseRatePerKm)
	}
	if cfg.CallAnswerDelay != 150*time.Millisecond {
		t.Errorf("CallAnswerDelay = %v", cfg.CallAnswerDelay)
	}
	if !cfg.RunMigrations {
		t.Error("RunMigrations should be true")
	}
}

func TestLoadServerConfigCollectsErrors(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Setenv("FARE_BASE_RATE_PER_KM", "-1")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected combined validation error")
	}
	for _, want := range []string{"HTTP_READ_TIMEOUT", "FARE_BASE_RATE_PER_KM"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoadConsumerConfigRequiresDSN(t *testing.T) {
	if _, err := LoadConsumerConfig(); err == nil || !strings.Contains(err.Error(), "PG_DSN") {
		t.Fatalf("expected PG_DSN error, got %v", err)
	}

	t.Setenv("PG_DSN", "postgres://localhost/charity")
	t.Setenv("KAFKA_GROUP", "custom-group")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.KafkaGroup != "custom-group" {
		t.Errorf("KafkaGroup = %q", cfg.KafkaGroup)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
}
