package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/coordinator"
	"github.com/example/charity-drive/internal/fare"
	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/store"
)

// RiderSession is one connected rider's state machine. It is constructed
// per party and driven by local actions plus broadcast events; there is
// no shared ambient state between sessions.
//
// Push events only prompt a refresh: every transition that depends on
// ride status is derived from the authoritative store read, so the
// polling fallback and the realtime channel converge by construction.
type RiderSession struct {
	Coord     *coordinator.Coordinator
	Estimator *fare.Estimator
	Hub       *broadcast.Hub
	Logger    *slog.Logger

	// Simulated payment timings; see ConfirmPayment.
	VerifyDelay    time.Duration
	ConfirmedDelay time.Duration

	mu          sync.Mutex
	state       State
	selection   SelectionMode
	pickup      *models.Coord
	dropoff     *models.Coord
	pickupAddr  string
	dropoffAddr string
	option      models.RideOption
	quote       fare.Quote
	ride        *models.RideRequest // local snapshot, never authoritative
	epoch       int                 // invalidates pending payment timers on reset
	lastErr     error
}

func NewRiderSession(c *coordinator.Coordinator, est *fare.Estimator, hub *broadcast.Hub, logger *slog.Logger) *RiderSession {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiderSession{
		Coord:          c,
		Estimator:      est,
		Hub:            hub,
		Logger:         logger,
		VerifyDelay:    2500 * time.Millisecond,
		ConfirmedDelay: 3 * time.Second,
		state:          StateIdle,
		option:         models.RideOptions[0],
	}
}

func (s *RiderSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *RiderSession) Selection() SelectionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Ride returns the session's local ride snapshot, nil before booking.
func (s *RiderSession) Ride() *models.RideRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ride == nil {
		return nil
	}
	cp := *s.ride
	return &cp
}

// Quote returns the last computed fare quote.
func (s *RiderSession) Quote() fare.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quote
}

// StartSelecting puts the session into pickup or dropoff choice mode.
func (s *RiderSession) StartSelecting(mode SelectionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return
	}
	s.selection = mode
}

// SetPickup records the pickup point. Choosing a new pickup invalidates
// any previous quote; when both endpoints are set the fare is recomputed.
func (s *RiderSession) SetPickup(ctx context.Context, c models.Coord, address string) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.pickup = &c
	s.pickupAddr = address
	s.quote = fare.Quote{}
	s.selection = SelectDropoff
	both := s.dropoff != nil
	s.mu.Unlock()
	if both {
		s.calculate(ctx)
	}
}

// SetDropoff records the destination and recomputes the fare when the
// pickup is already set.
func (s *RiderSession) SetDropoff(ctx context.Context, c models.Coord, address string) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.dropoff = &c
	s.dropoffAddr = address
	s.selection = SelectNone
	both := s.pickup != nil
	s.mu.Unlock()
	if both {
		s.calculate(ctx)
	}
}

// SetOption picks the service tier and reprices an existing quote.
func (s *RiderSession) SetOption(ctx context.Context, optionID string) {
	opt, ok := models.RideOptionByID(optionID)
	if !ok {
		return
	}
	s.mu.Lock()
	s.option = opt
	both := s.pickup != nil && s.dropoff != nil && s.state == StateIdle
	s.mu.Unlock()
	if both {
		s.calculate(ctx)
	}
}

// calculate runs Idle -> Calculating -> Idle, leaving the quote behind.
func (s *RiderSession) calculate(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle || s.pickup == nil || s.dropoff == nil {
		s.mu.Unlock()
		return
	}
	s.state = StateCalculating
	pickup, dropoff, mult := *s.pickup, *s.dropoff, s.option.Multiplier
	s.mu.Unlock()

	q := s.Estimator.Estimate(ctx, pickup, dropoff, mult)

	s.mu.Lock()
	if s.state == StateCalculating {
		s.quote = q
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// SubmitBooking creates the ride and moves to AwaitingDriver. On any
// error the session stays in Idle untouched; the caller may retry.
func (s *RiderSession) SubmitBooking(ctx context.Context, offeredFare float64, charityID, lang string) (*coordinator.CreateResult, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, errors.New("booking not available in state " + string(s.state))
	}
	if s.pickup == nil || s.dropoff == nil {
		s.mu.Unlock()
		return nil, errors.New("pickup and dropoff must be set before booking")
	}
	in := coordinator.CreateInput{
		Pickup:            *s.pickup,
		Dropoff:           *s.dropoff,
		PickupAddress:     s.pickupAddr,
		DropoffAddress:    s.dropoffAddr,
		RideOptionID:      s.option.ID,
		SuggestedFare:     s.quote.SuggestedFare,
		FinalFare:         offeredFare,
		DistanceKm:        s.quote.DistanceKm,
		TravelTimeMinutes: s.quote.TravelTimeMinutes,
		CharityID:         charityID,
		Language:          lang,
	}
	s.mu.Unlock()

	res, err := s.Coord.Create(ctx, in)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	if s.state == StateIdle { // a concurrent reset loses the booking on purpose
		s.ride = res.Ride
		s.state = StateAwaitingDriver
	}
	s.mu.Unlock()
	return res, nil
}

// HandleEvent reacts to a broadcast from the ride's room. The event is a
// hint only; Refresh re-reads authoritative state before any transition,
// so duplicate or stale deliveries are harmless.
func (s *RiderSession) HandleEvent(ctx context.Context, ev broadcast.Event) {
	s.mu.Lock()
	ride := s.ride
	s.mu.Unlock()
	if ride == nil || ev.Topic != broadcast.RideRoom(ride.ID) {
		return
	}
	switch ev.Kind {
	case broadcast.KindRideAccepted, broadcast.KindRideArrived, broadcast.KindRideComplete:
		s.Refresh(ctx)
	}
}

// Refresh is the single authoritative read path shared by push and poll.
// It fetches the ride and advances the state machine one step when the
// stored status warrants it; anything else is ignored without a change.
func (s *RiderSession) Refresh(ctx context.Context) {
	s.mu.Lock()
	ride := s.ride
	s.mu.Unlock()
	if ride == nil {
		return
	}
	current, err := s.Coord.Get(ctx, ride.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.Logger.Warn("ride refresh failed", "ride_id", ride.ID, "error", err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ride = current
	switch {
	case s.state == StateAwaitingDriver && current.Status == models.StatusAccepted:
		s.state = StateDriverEnRoute
		s.Logger.Info("driver assigned", "ride_id", current.ID)
	case s.state == StateDriverEnRoute && current.Status == models.StatusInProgress:
		s.state = StateInProgress
	case s.state == StateInProgress && current.Status == models.StatusCompleted:
		s.state = StatePaymentPending
	default:
		// out-of-order or already-applied status: not a valid transition
		// from the current state, so leave the machine untouched
	}
}

// Cancel withdraws a pending booking and returns to Idle.
func (s *RiderSession) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateAwaitingDriver || s.ride == nil {
		s.mu.Unlock()
		return errors.New("no pending booking to cancel")
	}
	rideID := s.ride.ID
	s.mu.Unlock()

	if err := s.Coord.Cancel(ctx, rideID); err != nil {
		// a conflict means a driver won the race first; the next refresh
		// will advance to DriverEnRoute instead
		if errors.Is(err, store.ErrConflict) {
			s.Refresh(ctx)
		}
		return err
	}
	s.reset()
	return nil
}

// ConfirmPayment starts the simulated verification: PaymentPending ->
// VerifyingPayment, then Confirmed after VerifyDelay, then an automatic
// return to Idle after ConfirmedDelay. The delays stand in for a real
// payment confirmation round-trip.
func (s *RiderSession) ConfirmPayment() error {
	s.mu.Lock()
	if s.state != StatePaymentPending {
		s.mu.Unlock()
		return errors.New("no payment awaiting confirmation")
	}
	s.state = StateVerifyingPayment
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	go func() {
		time.Sleep(s.VerifyDelay)
		s.mu.Lock()
		if s.epoch != epoch || s.state != StateVerifyingPayment {
			s.mu.Unlock()
			return
		}
		s.state = StateConfirmed
		s.mu.Unlock()

		time.Sleep(s.ConfirmedDelay)
		s.mu.Lock()
		ok := s.epoch == epoch && s.state == StateConfirmed
		s.mu.Unlock()
		if ok {
			s.Reset(context.Background())
		}
	}()
	return nil
}

// Reset returns the session to Idle from any non-terminal state,
// cancelling a still-pending ride on the way out.
func (s *RiderSession) Reset(ctx context.Context) {
	s.mu.Lock()
	ride := s.ride
	state := s.state
	s.mu.Unlock()

	if ride != nil && state == StateAwaitingDriver {
		if err := s.Coord.Cancel(ctx, ride.ID); err != nil &&
			!errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrConflict) {
			s.Logger.Warn("cancel on reset failed", "ride_id", ride.ID, "error", err)
		}
	}
	s.reset()
}

func (s *RiderSession) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.selection = SelectNone
	s.pickup, s.dropoff = nil, nil
	s.pickupAddr, s.dropoffAddr = "", ""
	s.option = models.RideOptions[0]
	s.quote = fare.Quote{}
	s.ride = nil
	s.lastErr = nil
	s.epoch++
}

// Run drives the session from its ride room subscription with a polling
// fallback on the same authoritative read. It returns when ctx ends.
func (s *RiderSession) Run(ctx context.Context, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 2500 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var sub *broadcast.Subscription
	var subRoom string
	defer func() {
		if sub != nil {
			sub.Cancel()
		}
	}()

	for {
		// (re)subscribe whenever the session gains or changes its ride
		if ride := s.Ride(); ride != nil {
			room := broadcast.RideRoom(ride.ID)
			if sub == nil || subRoom != room {
				if sub != nil {
					sub.Cancel()
				}
				sub = s.Hub.Subscribe(room)
				subRoom = room
				// events published before this subscription are not
				// replayed; catch up from the store instead
				s.Refresh(ctx)
			}
		} else if sub != nil {
			sub.Cancel()
			sub, subRoom = nil, ""
		}

		var events <-chan broadcast.Event
		if sub != nil {
			events = sub.C
		}
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				sub, subRoom = nil, ""
				continue
			}
			s.HandleEvent(ctx, ev)
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
