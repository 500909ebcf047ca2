package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/call"
	"github.com/example/charity-drive/internal/chat"
	"github.com/example/charity-drive/internal/config"
	"github.com/example/charity-drive/internal/coordinator"
	"github.com/example/charity-drive/internal/fare"
	"github.com/example/charity-drive/internal/ingest"
	"github.com/example/charity-drive/internal/phrase"
	"github.com/example/charity-drive/internal/routing"
	"github.com/example/charity-drive/internal/session"
	"github.com/example/charity-drive/internal/store"
)

// Server wires the coordinator, broadcaster and collaborator clients
// behind the HTTP and WebSocket surface.
type Server struct {
	Coord     *coordinator.Coordinator
	Estimator *fare.Estimator
	Geocoder  routing.Geocoder
	Chat      *chat.Relay
	Call      *call.Signaler
	Hub       *broadcast.Hub

	// Sessions builds rider and driver state machines with the configured
	// simulated delays and poll interval.
	Sessions session.Factory

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer builds the full service from config. Optional dependencies
// (Postgres, Redis, Kafka, routing, phrase generation) degrade to local
// or simulated fallbacks when unconfigured.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var rideStore store.RideStore
	if cfg.PGDSN != "" {
		ps, err := store.NewPostgresStore(cfg.PGDSN, logger)
		if err != nil {
			return nil, err
		}
		rideStore = ps
	} else {
		rideStore = store.NewMemoryStore()
	}

	hub := broadcast.NewHub(logger)
	if cfg.RedisAddr != "" {
		bridge := broadcast.NewRedisBridge(cfg.RedisAddr, cfg.RedisPassword, hub, logger)
		bridge.Start()
		hub.SetBridge(bridge)
	}

	coord := coordinator.New(rideStore, hub, logger)
	if len(cfg.KafkaBrokers) > 0 {
		coord.Producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if cfg.PhraseEndpoint != "" {
		coord.Phrase = phrase.NewClient(cfg.PhraseEndpoint, cfg.PhraseAPIKey)
	}

	var router routing.Router
	if cfg.RoutingEndpoint != "" {
		router = routing.NewOSRMClient(cfg.RoutingEndpoint, cfg.RoutingTimeout)
	}
	estimator := fare.NewEstimator(router)
	estimator.BaseRatePerKm = cfg.BaseRatePerKm
	estimator.AvgSpeedKmh = cfg.AvgSpeedKmh

	relay := chat.NewRelay(rideStore, hub, logger)
	relay.AutoReplyDelay = cfg.ChatReplyDelay
	signaler := call.NewSignaler(rideStore, hub, cfg.CallAnswerDelay, logger)

	s := &Server{
		Coord:     coord,
		Estimator: estimator,
		Geocoder:  routing.NewNominatimClient(cfg.GeocodeEndpoint, cfg.GeocodeTimeout),
		Chat:      relay,
		Call:      signaler,
		Hub:       hub,
		Sessions: session.Factory{
			Coord:          coord,
			Estimator:      estimator,
			Hub:            hub,
			Logger:         logger,
			VerifyDelay:    cfg.PaymentVerifyDelay,
			ConfirmedDelay: cfg.ConfirmedResetDelay,
			PollInterval:   cfg.SessionPollInterval,
		},
		logger: logger,
		mux:    mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides", s.handleListPending).Methods("GET")
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{id}", s.handleCancelRide).Methods("DELETE")
	api.HandleFunc("/rides/{id}/accept", s.handleAcceptRide).Methods("POST")
	api.HandleFunc("/rides/{id}/arrive", s.handleArrive).Methods("POST")
	api.HandleFunc("/rides/{id}/complete", s.handleComplete).Methods("POST")
	api.HandleFunc("/rides/{id}/chat", s.handleChatSend).Methods("POST")
	api.HandleFunc("/rides/{id}/chat", s.handleChatHistory).Methods("GET")
	api.HandleFunc("/fare/quote", s.handleFareQuote).Methods("GET")
	api.HandleFunc("/geo/reverse", s.handleReverseGeocode).Methods("GET")
	api.HandleFunc("/geo/search", s.handleSearchLocations).Methods("GET")
	api.HandleFunc("/options", s.handleRideOptions).Methods("GET")
	api.HandleFunc("/charities", s.handleCharities).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{role}/{client_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
