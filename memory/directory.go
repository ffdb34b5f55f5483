package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Directory reads and writes user knowledge over a Store.
type Directory struct {
	store       Store
	recentTrips int
}

// NewDirectory creates a Directory over store. recentTrips bounds how many
// saved trips UserContext includes; zero or less uses the default.
func NewDirectory(store Store, recentTrips int) *Directory {
	if recentTrips <= 0 {
		recentTrips = DefaultConfig().RecentTrips
	}
	return &Directory{store: store, recentTrips: recentTrips}
}

// Profile returns the stored profile for uid layered over DefaultProfile.
// A user without a stored profile gets the defaults.
func (d *Directory) Profile(ctx context.Context, uid string) (Profile, error) {
	profile := DefaultProfile()

	entries, err := d.store.Load(ctx, ProfileKey(uid))
	if errors.Is(err, ErrKeyNotFound) {
		return profile, nil
	}
	if err != nil {
		return Profile{}, err
	}

	var stored Profile
	if err := json.Unmarshal(entries[0].Value, &stored); err != nil {
		return Profile{}, fmt.Errorf("%w: %s: %v", ErrLoadFailed, entries[0].Key, err)
	}
	profile.Merge(&stored)
	return profile, nil
}

// SaveProfile stores profile for uid.
func (d *Directory) SaveProfile(ctx context.Context, uid string, profile Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return d.store.Save(ctx, Entry{Key: ProfileKey(uid), Value: data})
}

// SaveTrip assigns trip an id and creation time when absent and stores it.
func (d *Directory) SaveTrip(ctx context.Context, trip Trip) (Trip, error) {
	if trip.UserID == "" {
		return Trip{}, fmt.Errorf("%w: trip has no owner", ErrInvalidKey)
	}
	if trip.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Trip{}, fmt.Errorf("%w: %v", ErrSaveFailed, err)
		}
		trip.ID = id.String()
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(trip)
	if err != nil {
		return Trip{}, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := d.store.Save(ctx, Entry{Key: TripKey(trip.UserID, trip.ID), Value: data}); err != nil {
		return Trip{}, err
	}
	return trip, nil
}

// Trips returns up to limit saved trips for uid, newest first. A limit of
// zero or less returns all of them.
func (d *Directory) Trips(ctx context.Context, uid string, limit int) ([]Trip, error) {
	keys, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}

	prefix := TripsPrefix(uid)
	var tripKeys []string
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) && strings.HasSuffix(k, ".json") {
			tripKeys = append(tripKeys, k)
		}
	}
	if len(tripKeys) == 0 {
		return []Trip{}, nil
	}

	entries, err := d.store.Load(ctx, tripKeys...)
	if err != nil {
		return nil, err
	}

	trips := make([]Trip, 0, len(entries))
	for _, e := range entries {
		var t Trip
		if err := json.Unmarshal(e.Value, &t); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, e.Key, err)
		}
		trips = append(trips, t)
	}

	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].CreatedAt.After(trips[j].CreatedAt)
	})
	if limit > 0 && len(trips) > limit {
		trips = trips[:limit]
	}
	return trips, nil
}

// UserContext assembles the profile and recent trips for uid.
func (d *Directory) UserContext(ctx context.Context, uid string) (UserContext, error) {
	profile, err := d.Profile(ctx, uid)
	if err != nil {
		return UserContext{}, err
	}
	trips, err := d.Trips(ctx, uid, d.recentTrips)
	if err != nil {
		return UserContext{}, err
	}
	return UserContext{
		UserID:        uid,
		Profile:       profile,
		PreviousTrips: trips,
		SystemTime:    time.Now().UTC(),
	}, nil
}
