package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/coordinator"
	"github.com/example/charity-drive/internal/fare"
)

// Factory builds per-party sessions over one shared coordinator,
// estimator and hub, with the simulated delays and the poll interval
// taken from configuration instead of each session's baked-in defaults.
type Factory struct {
	Coord     *coordinator.Coordinator
	Estimator *fare.Estimator
	Hub       *broadcast.Hub
	Logger    *slog.Logger

	VerifyDelay    time.Duration
	ConfirmedDelay time.Duration
	PollInterval   time.Duration
}

func (f Factory) Rider() *RiderSession {
	s := NewRiderSession(f.Coord, f.Estimator, f.Hub, f.Logger)
	if f.VerifyDelay > 0 {
		s.VerifyDelay = f.VerifyDelay
	}
	if f.ConfirmedDelay > 0 {
		s.ConfirmedDelay = f.ConfirmedDelay
	}
	return s
}

func (f Factory) Driver(driverID string) *DriverSession {
	return NewDriverSession(driverID, f.Coord, f.Hub, f.Logger)
}

// RunRider starts a rider session loop with the configured poll interval
// and returns a stop function.
func (f Factory) RunRider(s *RiderSession) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx, f.PollInterval)
	return cancel
}

// RunDriver starts a driver session loop with the configured poll
// interval and returns a stop function.
func (f Factory) RunDriver(s *DriverSession) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx, f.PollInterval)
	return cancel
}
