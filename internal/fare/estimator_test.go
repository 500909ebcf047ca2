package fare

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/routing"
)

type fakeRouter struct {
	route routing.Route
	err   error
}

func (f *fakeRouter) Route(_ context.Context, _, _ models.Coord) (routing.Route, error) {
	return f.route, f.err
}

func TestEstimateUsesRouter(t *testing.T) {
	e := NewEstimator(&fakeRouter{route: routing.Route{
		DistanceKm:      12.34,
		DurationMinutes: 18.6,
		Polyline:        "abc",
	}})

	q := e.Estimate(context.Background(), models.Coord{Lat: -17.78, Lng: -63.18}, models.Coord{Lat: -17.80, Lng: -63.20}, 1.5)

	if q.DistanceKm != 12.3 {
		t.Errorf("distance = %v, want 12.3", q.DistanceKm)
	}
	if q.TravelTimeMinutes != 19 {
		t.Errorf("minutes = %d, want 19", q.TravelTimeMinutes)
	}
	// 12.34 km * 3.80 Bs/km * 1.5
	want := math.Round(12.34*3.80*1.5*100) / 100
	if q.SuggestedFare != want {
		t.Errorf("fare = %v, want %v", q.SuggestedFare, want)
	}
	if q.Polyline != "abc" {
		t.Errorf("polyline = %q", q.Polyline)
	}
}

func TestEstimateFallsBackWhenRouterFails(t *testing.T) {
	e := NewEstimator(&fakeRouter{err: errors.New("osrm down")})

	pickup := models.Coord{Lat: -17.78, Lng: -63.18}
	dropoff := models.Coord{Lat: -17.80, Lng: -63.20}
	q := e.Estimate(context.Background(), pickup, dropoff, 1.0)

	if q.DistanceKm <= 0 {
		t.Fatalf("expected positive fallback distance, got %v", q.DistanceKm)
	}
	if q.SuggestedFare <= 0 {
		t.Fatalf("expected positive fare, got %v", q.SuggestedFare)
	}
	if q.Polyline != "" {
		t.Errorf("fallback should not carry a polyline, got %q", q.Polyline)
	}

	// fallback duration is distance at the assumed average speed
	wantMin := int(math.Round(HaversineKm(pickup, dropoff) / DefaultAvgSpeedKmh * 60))
	if q.TravelTimeMinutes != wantMin {
		t.Errorf("minutes = %d, want %d", q.TravelTimeMinutes, wantMin)
	}
}

func TestEstimateSamePointIsFree(t *testing.T) {
	e := NewEstimator(nil)
	p := models.Coord{Lat: -17.78, Lng: -63.18}
	q := e.Estimate(context.Background(), p, p, 2.0)
	if q.DistanceKm != 0 || q.SuggestedFare != 0 || q.TravelTimeMinutes != 0 {
		t.Fatalf("identical endpoints must quote zero, got %+v", q)
	}
}

func TestEstimateDefaultsBadMultiplier(t *testing.T) {
	e := NewEstimator(&fakeRouter{route: routing.Route{DistanceKm: 10, DurationMinutes: 20}})
	q := e.Estimate(context.Background(), models.Coord{Lat: 1}, models.Coord{Lat: 2}, 0)
	if q.SuggestedFare != 38.0 {
		t.Errorf("fare = %v, want 38.0 (10 km at base rate)", q.SuggestedFare)
	}
}

func TestHaversine(t *testing.T) {
	// Santa Cruz de la Sierra to Cotoca, roughly 18 km apart.
	a := models.Coord{Lat: -17.7833, Lng: -63.1821}
	b := models.Coord{Lat: -17.7550, Lng: -63.0500}
	d := HaversineKm(a, b)
	if d < 13 || d > 16 {
		t.Errorf("distance = %v km, want ~14", d)
	}
	if HaversineKm(a, a) != 0 {
		t.Errorf("zero-length distance = %v", HaversineKm(a, a))
	}
}
