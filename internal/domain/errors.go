package domain

import "errors"

var (
	// ErrNotFound is returned by read paths when no record matches.
	ErrNotFound = errors.New("not found")

	// ErrRateNotConfigured means no commission rate table exists for a
	// platform. Fatal for the affected rows: money is never computed
	// from an assumed default.
	ErrRateNotConfigured = errors.New("commission rates not configured")
)
