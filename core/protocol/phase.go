package protocol

import (
	"errors"
	"fmt"
)

// Phase identifies one stage of the travel-planning conversation lifecycle.
type Phase string

const (
	// PhaseInspiration explores destinations and trip ideas.
	PhaseInspiration Phase = "inspiration"

	// PhasePlanning shapes the day-by-day itinerary draft.
	PhasePlanning Phase = "planning"

	// PhaseBooking selects flights, stays and other reservations.
	PhaseBooking Phase = "booking"

	// PhasePreTrip covers documents, packing and final confirmations.
	PhasePreTrip Phase = "pre_trip"

	// PhaseInTrip assists the traveler while the trip is underway.
	PhaseInTrip Phase = "in_trip"

	// PhasePostTrip collects reflections and closes out the trip.
	PhasePostTrip Phase = "post_trip"
)

// ErrUnknownPhase indicates a phase identifier outside the fixed phase set,
// or a phase with no registered handler.
var ErrUnknownPhase = errors.New("unknown phase")

// IsValid checks if a string is a member of the fixed phase set.
func IsValid(p string) bool {
	switch Phase(p) {
	case PhaseInspiration, PhasePlanning, PhaseBooking, PhasePreTrip, PhaseInTrip, PhasePostTrip:
		return true
	default:
		return false
	}
}

// Phases returns the fixed phase set in lifecycle order.
func Phases() []Phase {
	return []Phase{
		PhaseInspiration,
		PhasePlanning,
		PhaseBooking,
		PhasePreTrip,
		PhaseInTrip,
		PhasePostTrip,
	}
}

// ParsePhase converts a string into a Phase, returning ErrUnknownPhase when
// the value is not a member of the fixed phase set.
func ParsePhase(s string) (Phase, error) {
	if !IsValid(s) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return Phase(s), nil
}

func (p Phase) String() string {
	return string(p)
}
