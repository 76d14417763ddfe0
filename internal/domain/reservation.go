package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the internal reservation status vocabulary. Platform-specific
// wording is mapped onto it during import; StatusUnknown marks rows that
// need manual review.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusUnknown   Status = "unknown"
)

// Platform identifies the sales channel a reservation originated from.
type Platform string

const (
	PlatformDirect  Platform = "direct"
	PlatformAirbnb  Platform = "airbnb"
	PlatformBooking Platform = "booking"
)

// StakeholderRole names a party in the commission split.
type StakeholderRole string

const (
	RolePlatform StakeholderRole = "platform"
	RoleOperator StakeholderRole = "operator"
	RoleOwner    StakeholderRole = "owner"
)

// Reservation is one booking instance. Gross is always in the canonical
// currency; source locale formatting is gone after parsing.
type Reservation struct {
	ID               int64
	ConfirmationCode string
	Platform         Platform
	PropertyID       *string
	UnitID           *string
	GuestName        *string
	GuestPhone       *string
	Adults           int
	Children         int
	Infants          int
	CheckIn          time.Time // date only, UTC midnight
	CheckOut         time.Time
	Nights           int
	BookedAt         *time.Time
	Status           Status
	Gross            decimal.Decimal
	Currency         string
	Commission       CommissionBreakdown
	RawJSON          []byte // source row as received, for operator remediation
}

// Key is the idempotent upsert key for re-imported rows.
func (r Reservation) Key() ReservationKey {
	return ReservationKey{Code: r.ConfirmationCode, Platform: r.Platform}
}

type ReservationKey struct {
	Code     string
	Platform Platform
}

// CommissionBreakdown maps stakeholder roles to their share of the gross
// amount. Shares always sum exactly to gross: the residual role absorbs
// the rounding remainder.
type CommissionBreakdown struct {
	Shares   map[StakeholderRole]decimal.Decimal
	Residual StakeholderRole
}

func (b CommissionBreakdown) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range b.Shares {
		sum = sum.Add(s)
	}
	return sum
}

// RateTable is the configured commission rates for one platform, loaded
// once per import batch. Residual names the role paid the remainder after
// the rated shares are rounded (the property owner).
type RateTable struct {
	Platform Platform
	Rates    map[StakeholderRole]decimal.Decimal
	Residual StakeholderRole
}

// ListingRef is the result of resolving a listing name against the
// property catalog. Exactly one of PropertyID/UnitID is set; a unit match
// also carries its parent property.
type ListingRef struct {
	PropertyID *string
	UnitID     *string
}

// ImportLog is the persisted audit record of one import batch.
type ImportLog struct {
	BatchID   string
	Platform  Platform
	Total     int
	Persisted int
	Rejected  int
	Flagged   int
	Cancelled bool
	Detail    []byte // JSON-encoded per-row diagnostics
}
