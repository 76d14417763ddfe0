package domain

import "context"

type ReservationRepository interface {
	// Write paths
	UpsertReservation(ctx context.Context, r Reservation) (int64, error)
	LogImport(ctx context.Context, l ImportLog) error

	// Catalog lookups used by import validation
	ResolveListing(ctx context.Context, name string) (ListingRef, error)
	PropertyExists(ctx context.Context, id string) (bool, error)

	// Read paths
	GetReservation(ctx context.Context, id int64) (Reservation, error)
	ListReservations(ctx context.Context, q ReservationsQuery) (ReservationsPage, error)
}

type RateProvider interface {
	// GetRates returns ErrRateNotConfigured when the platform has no
	// rate table.
	GetRates(ctx context.Context, p Platform) (RateTable, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Read models & queries

type ReservationsQuery struct {
	PropertyID *string
	UnitID     *string
	Status     *Status
	Platform   *Platform
	Limit      int
}

type ReservationsPage struct {
	Items      []Reservation
	NextCursor *string
}
