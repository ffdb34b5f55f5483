package memory

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Trip is a saved itinerary, flattened into the fields a traveler's history
// needs. Preference lists are deduplicated in first-seen order.
type Trip struct {
	ID                       string    `json:"id"`
	UserID                   string    `json:"user_id"`
	SessionID                string    `json:"session_id,omitempty"`
	Destination              string    `json:"destination"`
	DepartureCity            string    `json:"departure_city,omitempty"`
	StartDate                string    `json:"start_date,omitempty"`
	EndDate                  string    `json:"end_date,omitempty"`
	TotalBudget              string    `json:"total_budget"`
	Currency                 string    `json:"currency"`
	AdultTravellers          int       `json:"total_adult_travellers"`
	ChildTravellers          int       `json:"total_child_travellers"`
	TravellingWithPets       bool      `json:"travelling_with_pets"`
	StayPreference           []string  `json:"stay_preference"`
	TransportationPreference []string  `json:"transportation_preference"`
	ExtraActivities          []string  `json:"extra_activities"`
	SpecialRequirements      string    `json:"special_requirements,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
}

type itineraryTravelers struct {
	Adults   *int `json:"adults"`
	Children int  `json:"children"`
	Pets     bool `json:"pets"`
}

type itineraryEvent struct {
	EventType     string `json:"event_type"`
	RoomSelection string `json:"room_selection"`
	Description   string `json:"description"`
	Type          string `json:"type"`
}

type itineraryDay struct {
	Events []itineraryEvent `json:"events"`
}

// TripFromItinerary converts an itinerary draft into a Trip owned by uid.
// The draft must name a destination and carry at least one planned day.
func TripFromItinerary(uid string, itinerary map[string]json.RawMessage) (Trip, error) {
	trip := Trip{
		UserID:                   uid,
		Currency:                 "USD",
		AdultTravellers:          1,
		StayPreference:           []string{},
		TransportationPreference: []string{},
		ExtraActivities:          []string{},
	}

	var days []itineraryDay
	if raw, ok := itinerary["days"]; ok {
		if err := json.Unmarshal(raw, &days); err != nil {
			return Trip{}, fmt.Errorf("%w: days: %v", ErrIncompleteItinerary, err)
		}
	}
	if len(days) == 0 {
		return Trip{}, fmt.Errorf("%w: no planned days", ErrIncompleteItinerary)
	}

	fields := []struct {
		key string
		dst *string
	}{
		{"destination", &trip.Destination},
		{"origin", &trip.DepartureCity},
		{"start_date", &trip.StartDate},
		{"end_date", &trip.EndDate},
		{"notes", &trip.SpecialRequirements},
	}
	for _, f := range fields {
		if raw, ok := itinerary[f.key]; ok {
			if err := json.Unmarshal(raw, f.dst); err != nil {
				return Trip{}, fmt.Errorf("%w: %s: %v", ErrIncompleteItinerary, f.key, err)
			}
		}
	}
	if trip.Destination == "" {
		return Trip{}, fmt.Errorf("%w: destination missing", ErrIncompleteItinerary)
	}

	trip.TotalBudget = "0"
	if raw, ok := itinerary["estimated_budget"]; ok {
		var budget json.Number
		if err := json.Unmarshal(raw, &budget); err == nil {
			trip.TotalBudget = budget.String()
		}
	}

	if raw, ok := itinerary["travelers"]; ok {
		var t itineraryTravelers
		if err := json.Unmarshal(raw, &t); err == nil {
			if t.Adults != nil {
				trip.AdultTravellers = *t.Adults
			}
			trip.ChildTravellers = t.Children
			trip.TravellingWithPets = t.Pets
		}
	}

	for _, day := range days {
		for _, ev := range day.Events {
			switch ev.EventType {
			case "hotel":
				trip.StayPreference = appendUnique(trip.StayPreference, ev.RoomSelection)
			case "visit":
				trip.ExtraActivities = appendUnique(trip.ExtraActivities, ev.Description)
			case "transportation":
				trip.TransportationPreference = appendUnique(trip.TransportationPreference, ev.Type)
			}
		}
	}

	return trip, nil
}

func appendUnique(list []string, value string) []string {
	if value == "" || slices.Contains(list, value) {
		return list
	}
	return append(list, value)
}
