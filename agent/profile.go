package agent

import (
	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/tools"
)

// Profile is what distinguishes one phase's sub-agent from another: the
// instructions handed to the backend and the tools it may call.
type Profile struct {
	Phase        protocol.Phase
	Instructions string
	Tools        []string
}

// DefaultProfiles returns one profile per lifecycle phase, in lifecycle order.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Phase: protocol.PhaseInspiration,
			Instructions: "Help the traveler discover where to go. Ask about interests, season and budget. " +
				"Suggest a short list of destinations and propose moving to planning once one is chosen.",
		},
		{
			Phase: protocol.PhasePlanning,
			Instructions: "Build a day-by-day itinerary for the chosen destination. Record destination, dates, " +
				"travelers and budget in the itinerary. Propose booking once the traveler approves the plan.",
			Tools: []string{tools.CurrentTime},
		},
		{
			Phase: protocol.PhaseBooking,
			Instructions: "Find and reserve flights and lodging that fit the itinerary. Present options as " +
				"listings. Propose pre-trip preparation once reservations are confirmed, or return to planning " +
				"if the plan must change.",
			Tools: []string{tools.SearchFlights, tools.SearchHotels, tools.CurrentTime},
		},
		{
			Phase: protocol.PhasePreTrip,
			Instructions: "Prepare the traveler for departure: documents, packing, check-in times and local " +
				"practicalities. Return to booking if a reservation must change.",
			Tools: []string{tools.SearchFlights, tools.CurrentTime},
		},
		{
			Phase: protocol.PhaseInTrip,
			Instructions: "Assist the traveler during the trip with the day's plan, directions and changes. " +
				"Propose post-trip once the traveler is home.",
			Tools: []string{tools.SearchHotels, tools.CurrentTime},
		},
		{
			Phase: protocol.PhasePostTrip,
			Instructions: "Collect the traveler's impressions and help them save the trip. Mark the " +
				"conversation complete when they are done.",
		},
	}
}
