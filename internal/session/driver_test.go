package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/coordinator"
	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/store"
)

func newDriverFixture(driverID string) (*DriverSession, *coordinator.Coordinator) {
	hub := broadcast.NewHub(nil)
	coord := coordinator.New(store.NewMemoryStore(), hub, nil)
	return NewDriverSession(driverID, coord, hub, nil), coord
}

func createRide(t *testing.T, coord *coordinator.Coordinator) string {
	t.Helper()
	res, err := coord.Create(context.Background(), coordinator.CreateInput{
		Pickup:         plaza,
		Dropoff:        mall,
		PickupAddress:  "Plaza 24 de Septiembre",
		DropoffAddress: "Ventura Mall",
		RideOptionID:   "viaje",
		FinalFare:      50,
	})
	if err != nil {
		t.Fatal(err)
	}
	return res.Ride.ID
}

func TestDashboardRefresh(t *testing.T) {
	s, coord := newDriverFixture("d1")
	ctx := context.Background()

	if err := s.RefreshPending(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.Pending(); len(got) != 0 {
		t.Fatalf("pending = %v", got)
	}

	rideID := createRide(t, coord)
	if err := s.RefreshPending(ctx); err != nil {
		t.Fatal(err)
	}
	got := s.Pending()
	if len(got) != 1 || got[0].ID != rideID {
		t.Fatalf("pending = %v", got)
	}
}

func TestAcceptWinsAndServesRide(t *testing.T) {
	s, coord := newDriverFixture("d1")
	ctx := context.Background()
	rideID := createRide(t, coord)

	if err := s.Accept(ctx, rideID); err != nil {
		t.Fatal(err)
	}
	if got := s.State(); got != StateDriverEnRoute {
		t.Fatalf("state after accept = %s", got)
	}
	ride := s.Ride()
	if ride == nil || ride.Assignment == nil || ride.Assignment.DriverID != "d1" {
		t.Fatalf("ride = %+v", ride)
	}

	// a second accept while serving is refused locally
	other := createRide(t, coord)
	if err := s.Accept(ctx, other); err == nil {
		t.Fatal("accept while en route must fail")
	}

	if err := s.Arrive(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.State(); got != StateDriverEnRoute {
		t.Fatalf("arrival should keep the en-route view, state = %s", got)
	}
	if got := s.Ride().Status; got != models.StatusInProgress {
		t.Fatalf("ride status after arrive = %s", got)
	}

	if err := s.CompleteTrip(ctx); err != nil {
		t.Fatal(err)
	}
	if got := s.State(); got != StatePaymentRequest {
		t.Fatalf("state after complete = %s", got)
	}

	s.Reset(ctx)
	if got := s.State(); got != StateDashboard {
		t.Fatalf("state after reset = %s", got)
	}
	if s.Ride() != nil {
		t.Fatal("reset must drop the ride snapshot")
	}
}

func TestAcceptLoserStaysOnDashboard(t *testing.T) {
	winner, coord := newDriverFixture("d1")
	loser := NewDriverSession("d2", coord, winner.Hub, nil)
	ctx := context.Background()
	rideID := createRide(t, coord)

	if err := winner.Accept(ctx, rideID); err != nil {
		t.Fatal(err)
	}
	err := loser.Accept(ctx, rideID)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("loser accept = %v, want conflict", err)
	}
	if got := loser.State(); got != StateDashboard {
		t.Fatalf("loser state = %s", got)
	}
	// the stale entry is gone from the refreshed dashboard
	if got := loser.Pending(); len(got) != 0 {
		t.Fatalf("loser pending = %v", got)
	}
}

func TestConcurrentDriversOneWinner(t *testing.T) {
	first, coord := newDriverFixture("d0")
	ctx := context.Background()
	rideID := createRide(t, coord)

	sessions := []*DriverSession{first}
	for i := 1; i < 8; i++ {
		sessions = append(sessions, NewDriverSession("d"+string(rune('0'+i)), coord, first.Hub, nil))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, s := range sessions {
		wg.Add(1)
		go func(s *DriverSession) {
			defer wg.Done()
			if err := s.Accept(ctx, rideID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want 1", wins)
	}
	enRoute := 0
	for _, s := range sessions {
		if s.State() == StateDriverEnRoute {
			enRoute++
		} else if s.State() != StateDashboard {
			t.Fatalf("unexpected state %s", s.State())
		}
	}
	if enRoute != 1 {
		t.Fatalf("en-route sessions = %d, want 1", enRoute)
	}
}

// stallStore blocks the first pending-list read until released, holding
// the session loop in its initial fetch.
type stallStore struct {
	store.RideStore
	mu      sync.Mutex
	stalled bool
	release chan struct{}
}

func (s *stallStore) ListPending(ctx context.Context) ([]*models.RideRequest, error) {
	s.mu.Lock()
	first := !s.stalled
	s.stalled = true
	s.mu.Unlock()
	if first {
		<-s.release
	}
	return s.RideStore.ListPending(ctx)
}

func (s *stallStore) isStalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled
}

func TestRunRecoversFromDroppedSubscription(t *testing.T) {
	hub := broadcast.NewHub(nil)
	st := &stallStore{RideStore: store.NewMemoryStore(), release: make(chan struct{})}
	coord := coordinator.New(st, hub, nil)
	s := NewDriverSession("d1", coord, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx, 20*time.Millisecond)

	// wait until the loop is subscribed and stuck in its initial fetch
	deadline := time.Now().Add(2 * time.Second)
	for !st.isStalled() {
		if time.Now().After(deadline) {
			t.Fatal("session never reached the initial fetch")
		}
		time.Sleep(time.Millisecond)
	}

	// overflow the subscription buffer so the hub drops the session
	for i := 0; i < 100; i++ {
		hub.Publish(broadcast.TopicPending, broadcast.KindPendingList, nil)
	}
	close(st.release)

	// a ride created after the drop must still reach the dashboard:
	// losing the push channel costs latency, never convergence
	rideID := createRide(t, coord)
	deadline = time.Now().Add(2 * time.Second)
	for {
		p := s.Pending()
		if len(p) == 1 && p[0].ID == rideID {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("ride never reached the dashboard after drop, pending = %v", p)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunFollowsPendingTopic(t *testing.T) {
	s, coord := newDriverFixture("d1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Run(ctx, 20*time.Millisecond)

	rideID := createRide(t, coord)
	deadline := time.Now().Add(2 * time.Second)
	for {
		p := s.Pending()
		if len(p) == 1 && p[0].ID == rideID {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dashboard never saw the new ride, pending = %v", p)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// cancelling empties the dashboard again
	if err := coord.Cancel(ctx, rideID); err != nil {
		t.Fatal(err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for {
		if len(s.Pending()) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("dashboard kept the cancelled ride, pending = %v", s.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
