package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/example/charity-drive/internal/broadcast"
	"github.com/example/charity-drive/internal/ingest"
	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/observability"
	"github.com/example/charity-drive/internal/phrase"
	"github.com/example/charity-drive/internal/store"
)

// EventProducer is the audit stream sink. Emission is best-effort and
// never blocks or fails a state change.
type EventProducer interface {
	PublishRideEvent(ev ingest.RideEvent) error
}

// Coordinator orchestrates the ride lifecycle against the store and fans
// state changes out through the broadcaster. The store is the single
// source of truth; the coordinator never caches ride status.
type Coordinator struct {
	Store    store.RideStore
	Hub      *broadcast.Hub
	Producer EventProducer    // optional
	Phrase   phrase.Generator // optional
	Logger   *slog.Logger
}

func New(st store.RideStore, hub *broadcast.Hub, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{Store: st, Hub: hub, Logger: logger}
}

// CreateInput is the rider's booking submission. ID and status are
// assigned by the coordinator.
type CreateInput struct {
	Pickup            models.Coord `json:"pickup"`
	Dropoff           models.Coord `json:"dropoff"`
	PickupAddress     string       `json:"pickup_address"`
	DropoffAddress    string       `json:"dropoff_address"`
	RideOptionID      string       `json:"ride_option_id"`
	SuggestedFare     float64      `json:"suggested_fare"`
	FinalFare         float64      `json:"final_fare"`
	DistanceKm        float64      `json:"distance_km"`
	TravelTimeMinutes int          `json:"travel_time_minutes"`
	CharityID         string       `json:"charity_id,omitempty"`
	Language          string       `json:"language,omitempty"`
}

// CreateResult carries the stored ride plus the cosmetic confirmation
// phrase for the rider UI.
type CreateResult struct {
	Ride         *models.RideRequest `json:"ride"`
	Confirmation string              `json:"confirmation"`
}

// Create validates the submission, stores it as pending and broadcasts
// the updated pending list to all driver sessions.
func (c *Coordinator) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	option, ok := models.RideOptionByID(in.RideOptionID)
	if !ok {
		option = models.RideOption{ID: in.RideOptionID, Multiplier: 1.0}
	}
	now := time.Now().UTC()
	ride := &models.RideRequest{
		ID:                newID(),
		Pickup:            in.Pickup,
		Dropoff:           in.Dropoff,
		PickupAddress:     in.PickupAddress,
		DropoffAddress:    in.DropoffAddress,
		RideOption:        option,
		SuggestedFare:     in.SuggestedFare,
		FinalFare:         in.FinalFare,
		DistanceKm:        in.DistanceKm,
		TravelTimeMinutes: in.TravelTimeMinutes,
		Status:            models.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.CharityID != "" {
		if ch, ok := models.CharityByID(in.CharityID); ok {
			ride.Charity = &ch
		}
	}
	// reject before touching the store so the caller learns exactly what
	// is missing
	if err := store.ValidateRide(ride); err != nil {
		return nil, err
	}
	if err := c.Store.Create(ctx, ride); err != nil {
		return nil, err
	}

	observability.RidesCreatedTotal.Inc()
	c.Logger.Info("ride created", "ride_id", ride.ID, "final_fare", ride.FinalFare, "option", option.ID)
	c.publishPendingList(ctx)
	c.emit(ride.ID, "ride_created", ride)

	confirmation := phrase.DefaultMessage(ride.FinalFare, in.Language)
	if c.Phrase != nil {
		confirmation = c.Phrase.ConfirmationMessage(ctx, ride.FinalFare, in.Language)
	}
	return &CreateResult{Ride: ride, Confirmation: confirmation}, nil
}

// Accept claims a pending ride for a driver. The store transition is an
// atomic check-and-set, so of N racing drivers exactly one wins and the
// rest get ErrConflict.
func (c *Coordinator) Accept(ctx context.Context, rideID, driverID string) (*models.RideRequest, error) {
	assignment := c.assignmentFor(driverID)
	ride, err := c.Store.Accept(ctx, rideID, assignment)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			observability.AcceptConflicts.Inc()
			c.Logger.Info("accept lost race", "ride_id", rideID, "driver_id", driverID)
		}
		return nil, err
	}

	observability.RidesAcceptedTotal.Inc()
	c.Logger.Info("ride accepted", "ride_id", rideID, "driver_id", driverID)
	c.Hub.Publish(broadcast.RideRoom(rideID), broadcast.KindRideAccepted, ride)
	c.publishPendingList(ctx)
	c.emit(rideID, "ride_accepted", ride)
	return ride, nil
}

// Cancel withdraws a pending ride. It shares the accept atomicity domain:
// whichever mutation reaches the store first wins.
func (c *Coordinator) Cancel(ctx context.Context, rideID string) error {
	if err := c.Store.Cancel(ctx, rideID); err != nil {
		return err
	}
	observability.RidesCancelledTotal.Inc()
	c.Logger.Info("ride cancelled", "ride_id", rideID)
	c.Hub.Publish(broadcast.RideRoom(rideID), broadcast.KindRideCancel, map[string]string{"ride_id": rideID})
	c.publishPendingList(ctx)
	c.emit(rideID, "ride_cancelled", nil)
	return nil
}

// Arrive marks the driver as arrived, moving the ride into transit.
func (c *Coordinator) Arrive(ctx context.Context, rideID string) (*models.RideRequest, error) {
	ride, err := c.Store.Start(ctx, rideID)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("driver arrived", "ride_id", rideID)
	c.Hub.Publish(broadcast.RideRoom(rideID), broadcast.KindRideArrived, ride)
	c.emit(rideID, "driver_arrived", ride)
	return ride, nil
}

// Complete finishes the trip; completing an already-completed ride is a
// no-op success.
func (c *Coordinator) Complete(ctx context.Context, rideID string) (*models.RideRequest, error) {
	ride, err := c.Store.Complete(ctx, rideID)
	if err != nil {
		return nil, err
	}
	observability.RidesCompletedTotal.Inc()
	c.Logger.Info("ride completed", "ride_id", rideID)
	c.Hub.Publish(broadcast.RideRoom(rideID), broadcast.KindRideComplete, ride)
	c.emit(rideID, "ride_completed", ride)
	return ride, nil
}

// ListPending is the authoritative read backing both the pending-list
// broadcast and the polling fallback.
func (c *Coordinator) ListPending(ctx context.Context) ([]*models.RideRequest, error) {
	return c.Store.ListPending(ctx)
}

func (c *Coordinator) Get(ctx context.Context, rideID string) (*models.RideRequest, error) {
	return c.Store.Get(ctx, rideID)
}

func (c *Coordinator) publishPendingList(ctx context.Context) {
	pending, err := c.Store.ListPending(ctx)
	if err != nil {
		c.Logger.Error("pending list read failed", "error", err)
		return
	}
	c.Hub.Publish(broadcast.TopicPending, broadcast.KindPendingList, pending)
}

func (c *Coordinator) emit(rideID, kind string, payload any) {
	if c.Producer == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	ev := ingest.RideEvent{
		EventID:    newID(),
		RideID:     rideID,
		Kind:       kind,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}
	if err := c.Producer.PublishRideEvent(ev); err != nil {
		c.Logger.Warn("ride event publish failed", "ride_id", rideID, "kind", kind, "error", err)
	}
}

// Profile pool for simulated driver assignment. A real fleet directory
// would replace this lookup without touching the accept path.
var driverPool = []models.Driver{
	{Name: "Juan P.", LicensePlate: "5482-ABC"},
	{Name: "Maria G.", LicensePlate: "1234-XYZ"},
	{Name: "Carlos R.", LicensePlate: "9876-DEF"},
	{Name: "Sofia L.", LicensePlate: "4567-GHI"},
}

var vehiclePool = []models.Vehicle{
	{Model: "Toyota Corolla", Color: "Silver"},
	{Model: "Nissan Versa", Color: "White"},
	{Model: "Suzuki Swift", Color: "Red"},
	{Model: "Kia Rio", Color: "Black"},
}

func (c *Coordinator) assignmentFor(driverID string) models.Assignment {
	return models.Assignment{
		DriverID: driverID,
		Driver:   driverPool[randIndex(len(driverPool))],
		Vehicle:  vehiclePool[randIndex(len(vehiclePool))],
	}
}

func randIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
