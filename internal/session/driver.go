package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/coordinator"
	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/store"
)

// DriverSession is one connected driver's state machine:
// Dashboard -> DriverEnRoute (own accept success) -> PaymentRequest
// (trip complete) -> Dashboard. The pending-rides dashboard is fed by the
// pending-list topic with the store read as the polling fallback.
type DriverSession struct {
	DriverID string
	Coord    *coordinator.Coordinator
	Hub      *broadcast.Hub
	Logger   *slog.Logger

	mu      sync.Mutex
	state   State
	pending []*models.RideRequest
	ride    *models.RideRequest
}

func NewDriverSession(driverID string, c *coordinator.Coordinator, hub *broadcast.Hub, logger *slog.Logger) *DriverSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriverSession{
		DriverID: driverID,
		Coord:    c,
		Hub:      hub,
		Logger:   logger,
		state:    StateDashboard,
	}
}

func (s *DriverSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the dashboard's current view of open requests.
func (s *DriverSession) Pending() []*models.RideRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.RideRequest, len(s.pending))
	copy(out, s.pending)
	return out
}

// Ride returns the ride this driver is serving, nil while on Dashboard.
func (s *DriverSession) Ride() *models.RideRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ride == nil {
		return nil
	}
	cp := *s.ride
	return &cp
}

// RefreshPending re-reads the authoritative pending list. Used by both
// the poll ticker and pending-list push events.
func (s *DriverSession) RefreshPending(ctx context.Context) error {
	pending, err := s.Coord.ListPending(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.state == StateDashboard {
		s.pending = pending
	}
	s.mu.Unlock()
	return nil
}

// Accept tries to claim a pending ride. Exactly one driver wins; losers
// get store.ErrConflict and stay on the Dashboard with their list
// refreshed so the stale entry disappears.
func (s *DriverSession) Accept(ctx context.Context, rideID string) error {
	s.mu.Lock()
	if s.state != StateDashboard {
		s.mu.Unlock()
		return errors.New("cannot accept while serving a ride")
	}
	s.mu.Unlock()

	ride, err := s.Coord.Accept(ctx, rideID, s.DriverID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			_ = s.RefreshPending(ctx)
		}
		return err
	}

	s.mu.Lock()
	s.ride = ride
	s.state = StateDriverEnRoute
	s.pending = nil
	s.mu.Unlock()
	return nil
}

// Arrive signals pickup; the ride moves to in_progress but the driver
// stays en route view-wise until the trip completes.
func (s *DriverSession) Arrive(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDriverEnRoute || s.ride == nil {
		s.mu.Unlock()
		return errors.New("no ride en route")
	}
	rideID := s.ride.ID
	s.mu.Unlock()

	ride, err := s.Coord.Arrive(ctx, rideID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ride = ride
	s.mu.Unlock()
	return nil
}

// CompleteTrip finishes the ride and waits for the rider's payment
// confirmation on the PaymentRequest screen.
func (s *DriverSession) CompleteTrip(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDriverEnRoute || s.ride == nil {
		s.mu.Unlock()
		return errors.New("no ride to complete")
	}
	rideID := s.ride.ID
	s.mu.Unlock()

	ride, err := s.Coord.Complete(ctx, rideID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ride = ride
	s.state = StatePaymentRequest
	s.mu.Unlock()
	return nil
}

// Reset returns to the Dashboard, dropping any local ride snapshot.
func (s *DriverSession) Reset(ctx context.Context) {
	s.mu.Lock()
	s.ride = nil
	s.state = StateDashboard
	s.pending = nil
	s.mu.Unlock()
	_ = s.RefreshPending(ctx)
}

// Run drives the dashboard from the pending-list topic with a polling
// fallback over the same authoritative read.
func (s *DriverSession) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	sub := s.Hub.Subscribe(broadcast.TopicPending)
	defer func() { sub.Cancel() }()

	// initial authoritative fetch; the subscription has no replay
	_ = s.RefreshPending(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C:
			if !ok {
				// dropped by the hub for falling behind; losing the push
				// channel must only cost latency, so reattach and catch
				// up from the store
				sub = s.Hub.Subscribe(broadcast.TopicPending)
				_ = s.RefreshPending(ctx)
				continue
			}
			_ = s.RefreshPending(ctx)
		case <-ticker.C:
			_ = s.RefreshPending(ctx)
		}
	}
}
