package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/charity-drive/internal/models"
)

func pendingRide(id string) *models.RideRequest {
	now := time.Now().UTC()
	return &models.RideRequest{
		ID:             id,
		Pickup:         models.Coord{Lat: -17.78, Lng: -63.18},
		Dropoff:        models.Coord{Lat: -17.80, Lng: -63.20},
		PickupAddress:  "Plaza 24 de Septiembre",
		DropoffAddress: "Ventura Mall",
		RideOption:     models.RideOption{ID: "viaje", Multiplier: 1.0},
		FinalFare:      50,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func testAssignment(driverID string) models.Assignment {
	return models.Assignment{
		DriverID: driverID,
		Driver:   models.Driver{Name: "Juan P.", LicensePlate: "5482-ABC"},
		Vehicle:  models.Vehicle{Model: "Toyota Corolla", Color: "Silver"},
	}
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.Create(ctx, pendingRide("r1")); err != nil {
		t.Fatal(err)
	}

	const drivers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, conflicts int

	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := m.Accept(ctx, "r1", testAssignment("d"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
	if conflicts != drivers-1 {
		t.Fatalf("expected %d conflicts, got %d", drivers-1, conflicts)
	}
}

func TestAcceptCancelRace(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		m := NewMemoryStore()
		if err := m.Create(ctx, pendingRide("r1")); err != nil {
			t.Fatal(err)
		}
		var wg sync.WaitGroup
		var acceptErr, cancelErr error
		wg.Add(2)
		go func() { defer wg.Done(); _, acceptErr = m.Accept(ctx, "r1", testAssignment("d1")) }()
		go func() { defer wg.Done(); cancelErr = m.Cancel(ctx, "r1") }()
		wg.Wait()

		if (acceptErr == nil) == (cancelErr == nil) {
			t.Fatalf("iteration %d: exactly one of accept/cancel must win (accept=%v cancel=%v)", i, acceptErr, cancelErr)
		}
	}
}

func TestPendingListLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.Create(ctx, pendingRide("r1")); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, pendingRide("r2")); err != nil {
		t.Fatal(err)
	}

	pending, _ := m.ListPending(ctx)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending rides, got %d", len(pending))
	}

	if _, err := m.Accept(ctx, "r1", testAssignment("d1")); err != nil {
		t.Fatal(err)
	}
	pending, _ = m.ListPending(ctx)
	if len(pending) != 1 || pending[0].ID != "r2" {
		t.Fatalf("expected only r2 pending, got %v", pending)
	}

	got, err := m.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Assignment == nil || got.Assignment.DriverID != "d1" {
		t.Fatalf("expected driver assignment on accepted ride, got %+v", got.Assignment)
	}

	if err := m.Cancel(ctx, "r2"); err != nil {
		t.Fatal(err)
	}
	pending, _ = m.ListPending(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected empty pending list, got %d", len(pending))
	}
	if _, err := m.Accept(ctx, "r2", testAssignment("d2")); !errors.Is(err, ErrConflict) {
		t.Fatalf("accept after cancel should conflict, got %v", err)
	}
}

func TestCompleteIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if err := m.Create(ctx, pendingRide("r1")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept(ctx, "r1", testAssignment("d1")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Complete(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	ride, err := m.Complete(ctx, "r1")
	if err != nil {
		t.Fatalf("second complete must be a no-op success, got %v", err)
	}
	if ride.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", ride.Status)
	}
}

func TestTransitionsOnMissingRide(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if _, err := m.Accept(ctx, "nope", testAssignment("d")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := m.Cancel(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := m.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSnapshotsDoNotShareState(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	in := pendingRide("r1")
	in.Charity = &models.Charity{ID: "animal_rescue", Name: "Animal Rescue"}
	if err := m.Create(ctx, in); err != nil {
		t.Fatal(err)
	}

	// mutating the struct handed to Create must not touch stored state
	in.Charity.Name = "changed by caller"
	got, err := m.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Charity.Name != "Animal Rescue" {
		t.Fatalf("charity name = %q", got.Charity.Name)
	}

	if _, err := m.Accept(ctx, "r1", testAssignment("d1")); err != nil {
		t.Fatal(err)
	}

	// nor can a returned snapshot write through its pointer fields
	got, err = m.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	got.Assignment.DriverID = "hijacked"
	got.Charity.ID = "hijacked"

	again, err := m.Get(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Assignment.DriverID != "d1" {
		t.Fatalf("assignment driver = %q", again.Assignment.DriverID)
	}
	if again.Charity.ID != "animal_rescue" {
		t.Fatalf("charity id = %q", again.Charity.ID)
	}
}

func TestValidateRideRejectsMalformedState(t *testing.T) {
	r := pendingRide("r1")
	r.FinalFare = 0
	if err := ValidateRide(r); err == nil {
		t.Fatal("expected validation error for missing fare")
	}

	r = pendingRide("r2")
	r.Status = "weird"
	if err := ValidateRide(r); err == nil {
		t.Fatal("expected validation error for unknown status")
	}

	// accepted without an assignment is a corrupt row, not a pending ride
	r = pendingRide("r3")
	r.Status = models.StatusAccepted
	if err := ValidateRide(r); err == nil {
		t.Fatal("expected validation error for accepted ride without assignment")
	}
}
