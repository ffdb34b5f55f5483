package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jurni-app/planner/core/protocol"
)

// Travel tool names.
const (
	SearchFlights = "search_flights"
	SearchHotels  = "search_hotels"
	CurrentTime   = "current_time"
)

// Travel returns the catalog holding the flight search, hotel search and
// clock tools. The catalog is built once and shared.
var Travel = sync.OnceValue(newTravel)

func newTravel() *Catalog {
	c := NewCatalog()
	defs := []struct {
		tool    protocol.Tool
		handler Handler
	}{
		{
			tool: protocol.Tool{
				Name:        SearchFlights,
				Description: "Searches flights between two airports on a date. Returns a flight listing.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"origin":         map[string]any{"type": "string", "description": "Departure airport or city code."},
						"destination":    map[string]any{"type": "string", "description": "Arrival airport or city code."},
						"departure_date": map[string]any{"type": "string", "description": "Departure date (YYYY-MM-DD)."},
						"passengers":     map[string]any{"type": "integer", "description": "Number of passengers."},
						"class":          map[string]any{"type": "string", "description": "Cabin class: economy, premium or business."},
					},
					"required": []string{"origin", "destination"},
				},
			},
			handler: handleSearchFlights,
		},
		{
			tool: protocol.Tool{
				Name:        SearchHotels,
				Description: "Searches hotels in a city for a date range. Returns a hotel listing.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"city":      map[string]any{"type": "string", "description": "City to search."},
						"check_in":  map[string]any{"type": "string", "description": "Check-in date (YYYY-MM-DD)."},
						"check_out": map[string]any{"type": "string", "description": "Check-out date (YYYY-MM-DD)."},
						"guests":    map[string]any{"type": "integer", "description": "Number of guests."},
					},
					"required": []string{"city"},
				},
			},
			handler: handleSearchHotels,
		},
		{
			tool: protocol.Tool{
				Name:        CurrentTime,
				Description: "Returns the current date and time in RFC3339 format, optionally in an IANA time zone.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"timezone": map[string]any{"type": "string", "description": "IANA time zone, e.g. Asia/Tokyo."},
					},
				},
			},
			handler: handleCurrentTime,
		},
	}

	for _, d := range defs {
		if err := c.Add(d.tool, d.handler); err != nil {
			panic(err)
		}
	}
	return c
}

type flight struct {
	ID               string   `json:"id"`
	Airline          string   `json:"airline"`
	FlightNumber     string   `json:"flightNumber"`
	Price            int      `json:"price"`
	Duration         string   `json:"duration"`
	Departure        string   `json:"departure"`
	Arrival          string   `json:"arrival"`
	DepartureDate    string   `json:"departureDate"`
	ArrivalDate      string   `json:"arrivalDate"`
	Stops            int      `json:"stops"`
	Aircraft         string   `json:"aircraft"`
	Class            string   `json:"class"`
	Amenities        []string `json:"amenities"`
	Baggage          string   `json:"baggage"`
	DepartureAirport string   `json:"departureAirport"`
	ArrivalAirport   string   `json:"arrivalAirport"`
}

var flightCatalog = []flight{
	{
		ID: "economy1", Airline: "Budget Wings", FlightNumber: "BW-5432", Price: 8500,
		Duration: "4h 30m", Departure: "08:15", Arrival: "13:45", Stops: 1,
		Aircraft: "Boeing 737", Class: "economy", Amenities: []string{"Snacks"},
		Baggage: "15kg checked + 7kg cabin",
	},
	{
		ID: "economy2", Airline: "SkyLine", FlightNumber: "SL-2210", Price: 11200,
		Duration: "2h 45m", Departure: "11:30", Arrival: "14:15", Stops: 0,
		Aircraft: "Airbus A320neo", Class: "economy", Amenities: []string{"Meal", "Wi-Fi"},
		Baggage: "20kg checked + 7kg cabin",
	},
	{
		ID: "business1", Airline: "Meridian Air", FlightNumber: "MA-118", Price: 32400,
		Duration: "2h 35m", Departure: "18:05", Arrival: "20:40", Stops: 0,
		Aircraft: "Boeing 787", Class: "business", Amenities: []string{"Lounge", "Meal", "Lie-flat seat"},
		Baggage: "2x32kg checked + 10kg cabin",
	},
}

type hotel struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	City          string   `json:"city"`
	PricePerNight int      `json:"pricePerNight"`
	Rating        float64  `json:"rating"`
	CheckIn       string   `json:"checkIn,omitempty"`
	CheckOut      string   `json:"checkOut,omitempty"`
	Amenities     []string `json:"amenities"`
}

var hotelCatalog = []hotel{
	{ID: "stay1", Name: "Harbor View Inn", PricePerNight: 95, Rating: 4.1, Amenities: []string{"Breakfast", "Wi-Fi"}},
	{ID: "stay2", Name: "Old Town Residency", PricePerNight: 140, Rating: 4.5, Amenities: []string{"Pool", "Wi-Fi", "Spa"}},
	{ID: "stay3", Name: "Garden Ryokan", PricePerNight: 210, Rating: 4.8, Amenities: []string{"Onsen", "Dinner"}},
}

func handleSearchFlights(_ context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		Origin        string `json:"origin"`
		Destination   string `json:"destination"`
		DepartureDate string `json:"departure_date"`
		Passengers    int    `json:"passengers"`
		Class         string `json:"class"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}
	if args.Origin == "" || args.Destination == "" {
		return Result{Content: "origin and destination are required", IsError: true}, nil
	}
	if args.Passengers <= 0 {
		args.Passengers = 1
	}
	if args.DepartureDate == "" {
		args.DepartureDate = time.Now().AddDate(0, 0, 30).Format(time.DateOnly)
	}

	flights := make([]flight, 0, len(flightCatalog))
	for _, f := range flightCatalog {
		if args.Class != "" && !strings.EqualFold(args.Class, f.Class) {
			continue
		}
		f.DepartureAirport = strings.ToUpper(args.Origin)
		f.ArrivalAirport = strings.ToUpper(args.Destination)
		f.DepartureDate = args.DepartureDate
		f.ArrivalDate = args.DepartureDate
		f.Price *= args.Passengers
		flights = append(flights, f)
	}

	return listing("flight_search_results", flights, map[string]any{
		"origin":          args.Origin,
		"destination":     args.Destination,
		"departure_date":  args.DepartureDate,
		"passenger_count": args.Passengers,
		"class":           args.Class,
	})
}

func handleSearchHotels(_ context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		City     string `json:"city"`
		CheckIn  string `json:"check_in"`
		CheckOut string `json:"check_out"`
		Guests   int    `json:"guests"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}
	if args.City == "" {
		return Result{Content: "city is required", IsError: true}, nil
	}

	hotels := make([]hotel, 0, len(hotelCatalog))
	for _, h := range hotelCatalog {
		h.City = args.City
		h.CheckIn = args.CheckIn
		h.CheckOut = args.CheckOut
		hotels = append(hotels, h)
	}

	return listing("hotel_search_results", hotels, map[string]any{
		"city":      args.City,
		"check_in":  args.CheckIn,
		"check_out": args.CheckOut,
		"guests":    args.Guests,
	})
}

func handleCurrentTime(_ context.Context, raw json.RawMessage) (Result, error) {
	var args struct {
		Timezone string `json:"timezone"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
		}
	}

	now := time.Now()
	if args.Timezone != "" {
		loc, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return Result{Content: fmt.Sprintf("unknown timezone %q", args.Timezone), IsError: true}, nil
		}
		now = now.In(loc)
	}
	return Result{Content: now.Format(time.RFC3339)}, nil
}

func listing(kind string, data any, criteria map[string]any) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"type":            kind,
		"data":            data,
		"search_criteria": criteria,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Content: string(body)}, nil
}
