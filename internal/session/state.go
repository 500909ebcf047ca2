package session

// State is a connected party's position in the ride lifecycle. Rider and
// driver views run parallel graphs over the same ride record.
type State string

const (
	// Rider states.
	StateIdle             State = "Idle"
	StateCalculating      State = "Calculating"
	StateAwaitingDriver   State = "AwaitingDriver"
	StateDriverEnRoute    State = "DriverEnRoute"
	StateInProgress       State = "InProgress"
	StatePaymentPending   State = "PaymentPending"
	StateVerifyingPayment State = "VerifyingPayment"
	StateConfirmed        State = "Confirmed"

	// Driver states. DriverEnRoute is shared with the rider graph.
	StateDashboard      State = "Dashboard"
	StatePaymentRequest State = "PaymentRequest"
)

// SelectionMode tracks which endpoint the rider is currently choosing.
type SelectionMode string

const (
	SelectNone    SelectionMode = ""
	SelectPickup  SelectionMode = "pickup"
	SelectDropoff SelectionMode = "dropoff"
)
