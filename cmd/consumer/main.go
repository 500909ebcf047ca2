// Command consumer tails the ride-event topic and appends every lifecycle
// change to the ride_events audit table. It is the durable history the
// coordinator itself does not keep.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/charity-drive/internal/config"
	"github.com/example/charity-drive/internal/ingest"
	"github.com/example/charity-drive/internal/logging"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total ride event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	eventsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_events_recorded_total",
		Help: "Total events written to the audit table",
	})
	recordErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_record_errors_total",
		Help: "Total audit table write failures",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, eventsRecorded, recordErrors)
}

func main() {
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on (overrides METRICS_ADDR)")
	flag.Parse()

	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewServiceLogger("audit-consumer", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	db, err := sql.Open("postgres", cfg.PGDSN)
	if err != nil {
		logger.Error("postgres open failed", "error", err)
		os.Exit(1)
	}
	sink := &postgresSink{db: db}

	// metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "postgres not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = db.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev ingest.RideEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.EventID == "" || ev.RideID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid ride event", "error", err)
			continue
		}

		if err := recordEventWithRetry(ctx, sink, ev, 3, 200*time.Millisecond); err != nil {
			recordErrors.Inc()
			logger.Error("audit write failed", "ride_id", ev.RideID, "kind", ev.Kind, "error", err)
			continue
		}
		eventsRecorded.Inc()
	}
}

// EventSink is the small persistence surface needed by the loop, kept as
// an interface so tests can fail it deterministically.
type EventSink interface {
	Record(ctx context.Context, ev ingest.RideEvent) error
}

type postgresSink struct{ db *sql.DB }

func (p *postgresSink) Record(ctx context.Context, ev ingest.RideEvent) error {
	// ON CONFLICT keeps the at-least-once stream idempotent on event_id
	_, err := p.db.ExecContext(ctx, `INSERT INTO ride_events(event_id, ride_id, kind, payload, occurred_at)
		VALUES($1,$2,$3,$4,$5) ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.RideID, ev.Kind, nullableJSON(ev.Payload), ev.OccurredAt)
	return err
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// recordEventWithRetry writes through the EventSink with retry/backoff.
func recordEventWithRetry(ctx context.Context, sink EventSink, ev ingest.RideEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = sink.Record(ctx, ev); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
