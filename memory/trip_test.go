package memory_test

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/jurni-app/planner/memory"
)

func itinerary(t *testing.T, src string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(src), &m); err != nil {
		t.Fatalf("unmarshal itinerary: %v", err)
	}
	return m
}

func TestTripFromItinerary(t *testing.T) {
	it := itinerary(t, `{
		"destination": "Lisbon",
		"origin": "Boston",
		"start_date": "2026-05-01",
		"end_date": "2026-05-06",
		"estimated_budget": 2400,
		"travelers": {"adults": 2, "children": 1, "pets": true},
		"notes": "vegetarian meals",
		"days": [
			{"events": [
				{"event_type": "transportation", "type": "flight"},
				{"event_type": "hotel", "room_selection": "double"},
				{"event_type": "visit", "description": "Belem Tower"}
			]},
			{"events": [
				{"event_type": "transportation", "type": "tram"},
				{"event_type": "transportation", "type": "flight"},
				{"event_type": "visit", "description": "Belem Tower"},
				{"event_type": "meal", "description": "ignored"}
			]}
		]
	}`)

	trip, err := memory.TripFromItinerary("u1", it)
	if err != nil {
		t.Fatalf("TripFromItinerary() error = %v", err)
	}

	if trip.UserID != "u1" || trip.Destination != "Lisbon" || trip.DepartureCity != "Boston" {
		t.Errorf("got owner/destination/origin %q/%q/%q", trip.UserID, trip.Destination, trip.DepartureCity)
	}
	if trip.StartDate != "2026-05-01" || trip.EndDate != "2026-05-06" {
		t.Errorf("got dates %q..%q", trip.StartDate, trip.EndDate)
	}
	if trip.TotalBudget != "2400" || trip.Currency != "USD" {
		t.Errorf("got budget %q %q, want 2400 USD", trip.TotalBudget, trip.Currency)
	}
	if trip.AdultTravellers != 2 || trip.ChildTravellers != 1 || !trip.TravellingWithPets {
		t.Errorf("got travelers %d/%d/%v", trip.AdultTravellers, trip.ChildTravellers, trip.TravellingWithPets)
	}
	if trip.SpecialRequirements != "vegetarian meals" {
		t.Errorf("got requirements %q", trip.SpecialRequirements)
	}
	if !slices.Equal(trip.TransportationPreference, []string{"flight", "tram"}) {
		t.Errorf("got transport %v", trip.TransportationPreference)
	}
	if !slices.Equal(trip.StayPreference, []string{"double"}) {
		t.Errorf("got stay %v", trip.StayPreference)
	}
	if !slices.Equal(trip.ExtraActivities, []string{"Belem Tower"}) {
		t.Errorf("got activities %v", trip.ExtraActivities)
	}
}

func TestTripFromItinerary_Defaults(t *testing.T) {
	trip, err := memory.TripFromItinerary("u1", itinerary(t, `{"destination":"Kyoto","days":[{"events":[]}]}`))
	if err != nil {
		t.Fatalf("TripFromItinerary() error = %v", err)
	}
	if trip.AdultTravellers != 1 {
		t.Errorf("got adults %d, want 1", trip.AdultTravellers)
	}
	if trip.TotalBudget != "0" {
		t.Errorf("got budget %q, want 0", trip.TotalBudget)
	}
	if trip.StayPreference == nil || trip.ExtraActivities == nil || trip.TransportationPreference == nil {
		t.Error("preference lists should be empty, not nil")
	}
}

func TestTripFromItinerary_Incomplete(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", `{}`},
		{"no days", `{"destination":"Kyoto"}`},
		{"empty days", `{"destination":"Kyoto","days":[]}`},
		{"no destination", `{"days":[{"events":[]}]}`},
		{"malformed days", `{"destination":"Kyoto","days":"tomorrow"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := memory.TripFromItinerary("u1", itinerary(t, tt.src))
			if !errors.Is(err, memory.ErrIncompleteItinerary) {
				t.Errorf("error = %v, want %v", err, memory.ErrIncompleteItinerary)
			}
		})
	}
}
