package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RideStatus is the lifecycle state of a ride request. Transitions are
// monotonic: pending -> accepted -> in_progress -> completed, with
// cancelled reachable only from pending.
type RideStatus string

const (
	StatusPending    RideStatus = "pending"
	StatusAccepted   RideStatus = "accepted"
	StatusInProgress RideStatus = "in_progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// Valid reports whether s is one of the known lifecycle states.
func (s RideStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RideOption is a service tier with a fare multiplier.
type RideOption struct {
	ID         string  `json:"id"`
	Multiplier float64 `json:"multiplier"`
}

type Charity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Driver struct {
	Name         string `json:"name"`
	LicensePlate string `json:"license_plate"`
}

type Vehicle struct {
	Model string `json:"model"`
	Color string `json:"color"`
}

// Assignment is the driver/vehicle pair attached to a ride when a driver
// wins the accept race. Present iff status is accepted, in_progress or
// completed.
type Assignment struct {
	DriverID string  `json:"driver_id"`
	Driver   Driver  `json:"driver"`
	Vehicle  Vehicle `json:"vehicle"`
}

// RideRequest is the authoritative ride record. It is owned by the ride
// store; every other component refers to it by ID.
type RideRequest struct {
	ID                string      `json:"id"`
	Pickup            Coord       `json:"pickup"`
	Dropoff           Coord       `json:"dropoff"`
	PickupAddress     string      `json:"pickup_address"`
	DropoffAddress    string      `json:"dropoff_address"`
	RideOption        RideOption  `json:"ride_option"`
	SuggestedFare     float64     `json:"suggested_fare"`
	FinalFare         float64     `json:"final_fare"`
	DistanceKm        float64     `json:"distance_km"`
	TravelTimeMinutes int         `json:"travel_time_minutes"`
	Charity           *Charity    `json:"charity,omitempty"`
	Status            RideStatus  `json:"status"`
	Assignment        *Assignment `json:"assignment,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Role identifies which side of a ride a party is on.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// ChatMessage is one entry in a ride's append-only chat log. Seq is the
// submission order within the ride; messages are never mutated.
type ChatMessage struct {
	ID        string    `json:"id"`
	RideID    string    `json:"ride_id"`
	Sender    Role      `json:"sender"`
	Text      string    `json:"text"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

type CallStatus string

const (
	CallNone    CallStatus = "none"
	CallRinging CallStatus = "ringing"
	CallActive  CallStatus = "active"
	CallEnded   CallStatus = "ended"
)

type CallType string

const (
	CallVoice CallType = "voice"
	CallVideo CallType = "video"
)

// CallSession is the signaling state of a ride's call. At most one live
// call exists per ride.
type CallSession struct {
	RideID string     `json:"ride_id"`
	Status CallStatus `json:"status"`
	Type   CallType   `json:"type"`
	Caller Role       `json:"caller"`
}
