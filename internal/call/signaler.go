package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/store"
)

var (
	// ErrCallInProgress means the ride already has a live call.
	ErrCallInProgress = errors.New("call already in progress")
	// ErrNoCall means there is no live call to answer or end.
	ErrNoCall = errors.New("no active call")
	// ErrRideClosed means the target ride was cancelled.
	ErrRideClosed = errors.New("ride is cancelled")
)

// Signaler runs the per-ride call state machine
// none -> ringing -> active -> ended -> none. Signaling state only: no
// media is negotiated or transported. At most one live call per ride.
type Signaler struct {
	Store  store.RideStore
	Hub    *broadcast.Hub
	Logger *slog.Logger

	// AnswerDelay is how long a call rings before the SIMULATED
	// auto-answer fires. A real peer answering replaces this timer
	// without touching the surrounding transitions.
	AnswerDelay time.Duration

	mu    sync.Mutex
	calls map[string]*state
}

type state struct {
	session models.CallSession
	epoch   int // guards the auto-answer timer against a restarted call
}

func NewSignaler(st store.RideStore, hub *broadcast.Hub, answerDelay time.Duration, logger *slog.Logger) *Signaler {
	if logger == nil {
		logger = slog.Default()
	}
	if answerDelay <= 0 {
		answerDelay = 3 * time.Second
	}
	return &Signaler{
		Store:       st,
		Hub:         hub,
		Logger:      logger,
		AnswerDelay: answerDelay,
		calls:       make(map[string]*state),
	}
}

// Initiate starts ringing the other party. Fails if the ride is unknown
// or cancelled, or a call is already live.
func (s *Signaler) Initiate(ctx context.Context, rideID string, caller models.Role, kind models.CallType) (models.CallSession, error) {
	ride, err := s.Store.Get(ctx, rideID)
	if err != nil {
		return models.CallSession{}, err
	}
	if ride.Status == models.StatusCancelled {
		return models.CallSession{}, ErrRideClosed
	}

	s.mu.Lock()
	if st, ok := s.calls[rideID]; ok && st.session.Status != models.CallNone {
		s.mu.Unlock()
		return models.CallSession{}, ErrCallInProgress
	}
	st := &state{
		session: models.CallSession{RideID: rideID, Status: models.CallRinging, Type: kind, Caller: caller},
	}
	if prev, ok := s.calls[rideID]; ok {
		st.epoch = prev.epoch + 1
	}
	s.calls[rideID] = st
	epoch := st.epoch
	session := st.session
	s.mu.Unlock()

	s.publish(session)
	go s.autoAnswer(rideID, epoch)
	return session, nil
}

// autoAnswer is the simulated callee: after AnswerDelay, a call still
// ringing for the same epoch goes active.
func (s *Signaler) autoAnswer(rideID string, epoch int) {
	time.Sleep(s.AnswerDelay)
	s.mu.Lock()
	st, ok := s.calls[rideID]
	if !ok || st.epoch != epoch || st.session.Status != models.CallRinging {
		s.mu.Unlock()
		return
	}
	st.session.Status = models.CallActive
	session := st.session
	s.mu.Unlock()
	s.Logger.Debug("simulated call answer", "ride_id", rideID)
	s.publish(session)
}

// Answer moves a ringing call to active explicitly (callee picked up
// before the simulated answer fired).
func (s *Signaler) Answer(rideID string) (models.CallSession, error) {
	s.mu.Lock()
	st, ok := s.calls[rideID]
	if !ok || st.session.Status != models.CallRinging {
		s.mu.Unlock()
		return models.CallSession{}, ErrNoCall
	}
	st.session.Status = models.CallActive
	session := st.session
	s.mu.Unlock()
	s.publish(session)
	return session, nil
}

// End terminates a ringing or active call. The "ended" state is published
// as a transient display cue, then the ride settles back to none.
func (s *Signaler) End(rideID string) error {
	s.mu.Lock()
	st, ok := s.calls[rideID]
	if !ok || (st.session.Status != models.CallRinging && st.session.Status != models.CallActive) {
		s.mu.Unlock()
		return ErrNoCall
	}
	st.session.Status = models.CallEnded
	ended := st.session
	st.session.Status = models.CallNone
	st.epoch++ // invalidate any pending auto-answer
	s.mu.Unlock()

	s.publish(ended)
	none := ended
	none.Status = models.CallNone
	s.publish(none)
	return nil
}

// Status returns the ride's current call state; none when no call exists.
func (s *Signaler) Status(rideID string) models.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.calls[rideID]; ok {
		return st.session
	}
	return models.CallSession{RideID: rideID, Status: models.CallNone, Type: models.CallVoice, Caller: models.RoleRider}
}

// Reset drops any call state for the ride. Called on session teardown.
func (s *Signaler) Reset(rideID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.calls, rideID)
}

func (s *Signaler) publish(session models.CallSession) {
	s.Hub.Publish(broadcast.RideRoom(session.RideID), broadcast.KindCallState, session)
}
