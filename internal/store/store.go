package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/charity-drive/internal/models"
)

var (
	// ErrNotFound means no ride exists with the given id.
	ErrNotFound = errors.New("ride not found")
	// ErrConflict means the ride exists but its status did not satisfy the
	// precondition of a conditional transition (e.g. accept on a ride that
	// is no longer pending).
	ErrConflict = errors.New("ride status conflict")
)

// RideStore is the single source of truth for ride requests. Accept and
// Cancel are conditional transitions: they apply only when the current
// status is pending, and racing callers get exactly one winner.
type RideStore interface {
	Create(ctx context.Context, r *models.RideRequest) error
	Get(ctx context.Context, id string) (*models.RideRequest, error)
	ListPending(ctx context.Context) ([]*models.RideRequest, error)

	// Accept transitions id from pending to accepted and attaches the
	// assignment in one atomic step. Returns ErrConflict if the ride is no
	// longer pending, ErrNotFound if it does not exist.
	Accept(ctx context.Context, id string, a models.Assignment) (*models.RideRequest, error)

	// Cancel transitions id from pending to cancelled. Same atomicity
	// domain as Accept: whichever mutation commits first wins.
	Cancel(ctx context.Context, id string) error

	// Start transitions id from accepted to in_progress.
	Start(ctx context.Context, id string) (*models.RideRequest, error)

	// Complete transitions accepted/in_progress to completed. Completing an
	// already-completed ride is a no-op success.
	Complete(ctx context.Context, id string) (*models.RideRequest, error)
}

// ValidateRide checks the invariants every stored ride must satisfy. Rows
// that bypass API validation (e.g. a direct database write) are rejected
// here rather than coerced into shape.
func ValidateRide(r *models.RideRequest) error {
	var missing []string
	if r.Pickup == (models.Coord{}) && r.PickupAddress == "" {
		missing = append(missing, "pickup")
	}
	if r.Dropoff == (models.Coord{}) && r.DropoffAddress == "" {
		missing = append(missing, "dropoff")
	}
	if r.FinalFare <= 0 {
		missing = append(missing, "final_fare")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRide, strings.Join(missing, ", "))
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRide, r.Status)
	}
	assigned := r.Status == models.StatusAccepted || r.Status == models.StatusInProgress || r.Status == models.StatusCompleted
	if assigned && r.Assignment == nil {
		return fmt.Errorf("%w: status %s without driver assignment", ErrInvalidRide, r.Status)
	}
	if !assigned && r.Assignment != nil {
		return fmt.Errorf("%w: status %s with driver assignment", ErrInvalidRide, r.Status)
	}
	return nil
}

// ErrInvalidRide marks a ride that violates store invariants.
var ErrInvalidRide = errors.New("invalid ride")
