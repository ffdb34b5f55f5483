package memory

import "time"

// Home describes where a traveler departs from and how they move locally.
type Home struct {
	Address         string `json:"address,omitempty"`
	LocalPreferMode string `json:"local_prefer_mode,omitempty"`
}

// Preferences captures the traveler's standing tastes.
type Preferences struct {
	TravelStyle string `json:"travel_style,omitempty"`
	BudgetRange string `json:"budget_range,omitempty"`
}

// Profile is a traveler's stored identity and preferences.
type Profile struct {
	Email               string      `json:"email,omitempty"`
	DisplayName         string      `json:"display_name,omitempty"`
	FirstName           string      `json:"first_name,omitempty"`
	LastName            string      `json:"last_name,omitempty"`
	PassportNationality string      `json:"passport_nationality,omitempty"`
	Home                Home        `json:"home"`
	Preferences         Preferences `json:"preferences"`
}

// DefaultProfile is the profile assumed for users without a stored one.
func DefaultProfile() Profile {
	return Profile{
		PassportNationality: "US",
		Home:                Home{LocalPreferMode: "driving"},
		Preferences: Preferences{
			TravelStyle: "adventure",
			BudgetRange: "moderate",
		},
	}
}

// Merge applies non-zero values from source into p.
func (p *Profile) Merge(source *Profile) {
	if source.Email != "" {
		p.Email = source.Email
	}
	if source.DisplayName != "" {
		p.DisplayName = source.DisplayName
	}
	if source.FirstName != "" {
		p.FirstName = source.FirstName
	}
	if source.LastName != "" {
		p.LastName = source.LastName
	}
	if source.PassportNationality != "" {
		p.PassportNationality = source.PassportNationality
	}
	if source.Home.Address != "" {
		p.Home.Address = source.Home.Address
	}
	if source.Home.LocalPreferMode != "" {
		p.Home.LocalPreferMode = source.Home.LocalPreferMode
	}
	if source.Preferences.TravelStyle != "" {
		p.Preferences.TravelStyle = source.Preferences.TravelStyle
	}
	if source.Preferences.BudgetRange != "" {
		p.Preferences.BudgetRange = source.Preferences.BudgetRange
	}
	if p.DisplayName == "" {
		p.DisplayName = p.FirstName
	}
}

// UserContext is the snapshot of user knowledge seeded into a new session.
type UserContext struct {
	UserID        string    `json:"user_id"`
	Profile       Profile   `json:"user_profile"`
	PreviousTrips []Trip    `json:"previous_trips"`
	SystemTime    time.Time `json:"system_time"`
}
