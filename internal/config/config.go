package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the coordinator
// process. Values are primarily loaded from environment variables with
// sane defaults so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN         string
	RunMigrations bool

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	RoutingEndpoint string
	RoutingTimeout  time.Duration
	GeocodeEndpoint string
	GeocodeTimeout  time.Duration

	PhraseEndpoint string
	PhraseAPIKey   string

	BaseRatePerKm float64
	AvgSpeedKmh   float64

	// Simulated transition delays. These stand in for real peer
	// negotiation and payment verification and are configurable mostly so
	// tests can shrink them.
	CallAnswerDelay     time.Duration
	ChatReplyDelay      time.Duration
	PaymentVerifyDelay  time.Duration
	ConfirmedResetDelay time.Duration
	SessionPollInterval time.Duration

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,

		KafkaTopic: "ride-events",

		RoutingTimeout:  2 * time.Second,
		GeocodeEndpoint: "https://nominatim.openstreetmap.org",
		GeocodeTimeout:  3 * time.Second,

		BaseRatePerKm: 3.80,
		AvgSpeedKmh:   25,

		CallAnswerDelay:     3 * time.Second,
		ChatReplyDelay:      2 * time.Second,
		PaymentVerifyDelay:  2500 * time.Millisecond,
		ConfirmedResetDelay: 3 * time.Second,
		SessionPollInterval: 3 * time.Second,

		LogLevel: "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.RoutingEndpoint = strings.TrimSpace(os.Getenv("ROUTING_ENDPOINT"))
	setDurationFromEnv(&cfg.RoutingTimeout, "ROUTING_TIMEOUT", &errs)
	setStringFromEnv(&cfg.GeocodeEndpoint, "GEOCODE_ENDPOINT")
	setDurationFromEnv(&cfg.GeocodeTimeout, "GEOCODE_TIMEOUT", &errs)

	cfg.PhraseEndpoint = strings.TrimSpace(os.Getenv("PHRASE_ENDPOINT"))
	cfg.PhraseAPIKey = os.Getenv("PHRASE_API_KEY")

	setFloatFromEnv(&cfg.BaseRatePerKm, "FARE_BASE_RATE_PER_KM", &errs)
	setFloatFromEnv(&cfg.AvgSpeedKmh, "FARE_AVG_SPEED_KMH", &errs)

	setDurationFromEnv(&cfg.CallAnswerDelay, "CALL_ANSWER_DELAY", &errs)
	setDurationFromEnv(&cfg.ChatReplyDelay, "CHAT_REPLY_DELAY", &errs)
	setDurationFromEnv(&cfg.PaymentVerifyDelay, "PAYMENT_VERIFY_DELAY", &errs)
	setDurationFromEnv(&cfg.ConfirmedResetDelay, "CONFIRMED_RESET_DELAY", &errs)
	setDurationFromEnv(&cfg.SessionPollInterval, "SESSION_POLL_INTERVAL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.BaseRatePerKm <= 0 {
		errs = append(errs, fmt.Errorf("FARE_BASE_RATE_PER_KM must be > 0"))
	}
	if cfg.AvgSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("FARE_AVG_SPEED_KMH must be > 0"))
	}
	if cfg.SessionPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_POLL_INTERVAL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the ride-event audit consumer.
type ConsumerConfig struct {
	MetricsAddr  string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	PGDSN        string
	LogLevel     string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr: ":2112",
		KafkaTopic:  "ride-events",
		KafkaGroup:  "charity-drive-audit",
		LogLevel:    "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	} else {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	cfg.PGDSN = os.Getenv("PG_DSN")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.PGDSN == "" {
		errs = append(errs, fmt.Errorf("PG_DSN is required for the audit consumer"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
