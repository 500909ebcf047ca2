package fare

import (
	"context"
	"math"

	"github.com/example/charity-drive/internal/models"
	"github.com/example/charity-drive/internal/observability"
	"github.com/example/charity-drive/internal/routing"
)

// Defaults carried over from the product: fares are quoted in Bs. and the
// fallback duration assumes average city traffic.
const (
	DefaultBaseRatePerKm = 3.80
	DefaultAvgSpeedKmh   = 25.0
)

// Quote is a fare suggestion for a route. The rider's final offer is an
// open-ended price and is never required to match SuggestedFare.
type Quote struct {
	DistanceKm        float64 `json:"distance_km"`
	TravelTimeMinutes int     `json:"travel_time_minutes"`
	SuggestedFare     float64 `json:"suggested_fare"`
	Polyline          string  `json:"polyline,omitempty"`
}

// Estimator turns a pickup/dropoff pair and a ride-option multiplier into
// a suggested price. The external router is preferred for distance and
// duration; when it is unreachable the estimator degrades to a
// great-circle distance at an assumed average speed.
type Estimator struct {
	Router        routing.Router // optional
	BaseRatePerKm float64
	AvgSpeedKmh   float64
}

func NewEstimator(router routing.Router) *Estimator {
	return &Estimator{
		Router:        router,
		BaseRatePerKm: DefaultBaseRatePerKm,
		AvgSpeedKmh:   DefaultAvgSpeedKmh,
	}
}

func (e *Estimator) Estimate(ctx context.Context, pickup, dropoff models.Coord, multiplier float64) Quote {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	rate := e.BaseRatePerKm
	if rate <= 0 {
		rate = DefaultBaseRatePerKm
	}

	var distanceKm, durationMin float64
	var polyline string
	routed := false
	if e.Router != nil {
		if r, err := e.Router.Route(ctx, pickup, dropoff); err == nil {
			distanceKm = r.DistanceKm
			durationMin = r.DurationMinutes
			polyline = r.Polyline
			routed = true
		}
	}
	if !routed {
		observability.FareFallbacksTotal.Inc()
		distanceKm = HaversineKm(pickup, dropoff)
		speed := e.AvgSpeedKmh
		if speed <= 0 {
			speed = DefaultAvgSpeedKmh
		}
		durationMin = distanceKm / speed * 60
	}

	return Quote{
		DistanceKm:        round1(distanceKm),
		TravelTimeMinutes: int(math.Round(durationMin)),
		SuggestedFare:     round2(distanceKm * rate * multiplier),
		Polyline:          polyline,
	}
}

// HaversineKm is the great-circle distance between two points in km.
func HaversineKm(a, b models.Coord) float64 {
	const R = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
