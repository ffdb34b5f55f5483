package memory

import "errors"

// Sentinel errors for store operations.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrInvalidKey  = errors.New("invalid key")
	ErrLoadFailed  = errors.New("load failed")
	ErrSaveFailed  = errors.New("save failed")

	// ErrIncompleteItinerary is returned when an itinerary lacks the fields
	// needed to save it as a trip.
	ErrIncompleteItinerary = errors.New("itinerary incomplete")
)
