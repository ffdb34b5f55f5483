package memory

import (
	"fmt"
	"path"
	"strings"
)

// Top-level namespace conventions for the memory key hierarchy.
const (
	NamespaceUsers    = "users"
	NamespaceSessions = "sessions"
)

// Entry is a key-value pair in the memory namespace. Keys are /-separated
// hierarchical paths and values are raw bytes.
type Entry struct {
	Key   string
	Value []byte
}

// ProfileKey is the key of a user's traveler profile.
func ProfileKey(uid string) string {
	return path.Join(NamespaceUsers, uid, "profile.json")
}

// TripsPrefix is the key prefix under which a user's trips are stored.
func TripsPrefix(uid string) string {
	return path.Join(NamespaceUsers, uid, "trips") + "/"
}

// TripKey is the key of one saved trip.
func TripKey(uid, tripID string) string {
	return path.Join(NamespaceUsers, uid, "trips", tripID+".json")
}

// ValidateKey rejects keys that are empty, absolute, or escape the namespace.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %s: absolute path", ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: %s", ErrInvalidKey, key)
		}
	}
	return nil
}
