package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"staybook/internal/domain"
)

// ValidationError is one violated constraint on a parsed row. All
// constraints are checked; the validator never stops at the first one, so
// an operator sees every problem in a single pass over the file.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// listingResolver is the slice of the repository the validator needs.
type listingResolver interface {
	ResolveListing(ctx context.Context, name string) (domain.ListingRef, error)
	PropertyExists(ctx context.Context, id string) (bool, error)
}

// validateRow turns a parsed row into a normalized reservation or the
// complete list of violated constraints. forcedProperty pins every row of
// the batch to one property instead of resolving the listing column.
func validateRow(ctx context.Context, repo listingResolver, p domain.Platform, pr parsedRow, forcedProperty *string) (domain.Reservation, []ValidationError) {
	var errs []ValidationError

	if len(pr.errs) > 0 {
		for _, e := range pr.errs {
			errs = append(errs, ValidationError{Field: "row", Reason: e})
		}
	}

	if pr.code == "" {
		errs = append(errs, ValidationError{Field: "confirmation_code", Reason: "required"})
	}
	if pr.checkIn == nil {
		errs = append(errs, ValidationError{Field: "check_in", Reason: "required"})
	}
	if pr.checkOut == nil {
		errs = append(errs, ValidationError{Field: "check_out", Reason: "required"})
	}
	if pr.checkIn != nil && pr.checkOut != nil && pr.checkOut.Before(*pr.checkIn) {
		errs = append(errs, ValidationError{Field: "check_out", Reason: "end date before start date"})
	}
	if pr.gross == nil {
		errs = append(errs, ValidationError{Field: "amount", Reason: "required"})
	}

	var ref domain.ListingRef
	switch {
	case forcedProperty != nil:
		ok, err := repo.PropertyExists(ctx, *forcedProperty)
		if err != nil {
			errs = append(errs, ValidationError{Field: "property", Reason: "catalog lookup failed: " + err.Error()})
		} else if !ok {
			errs = append(errs, ValidationError{Field: "property", Reason: fmt.Sprintf("unknown property %q", *forcedProperty)})
		} else {
			ref.PropertyID = forcedProperty
		}
	case pr.listing == "":
		errs = append(errs, ValidationError{Field: "listing", Reason: "required"})
	default:
		r, err := repo.ResolveListing(ctx, pr.listing)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			errs = append(errs, ValidationError{Field: "listing", Reason: fmt.Sprintf("unknown listing %q", pr.listing)})
		case err != nil:
			errs = append(errs, ValidationError{Field: "listing", Reason: "catalog lookup failed: " + err.Error()})
		default:
			ref = r
		}
	}

	if len(errs) > 0 {
		return domain.Reservation{}, errs
	}

	nights := pr.nights
	if nights == 0 {
		nights = int(pr.checkOut.Sub(*pr.checkIn).Hours() / 24)
	}

	raw, _ := json.Marshal(pr.row.Fields)
	return domain.Reservation{
		ConfirmationCode: pr.code,
		Platform:         p,
		PropertyID:       ref.PropertyID,
		UnitID:           ref.UnitID,
		GuestName:        pr.guest,
		GuestPhone:       pr.contact,
		Adults:           pr.adults,
		Children:         pr.children,
		Infants:          pr.infants,
		CheckIn:          *pr.checkIn,
		CheckOut:         *pr.checkOut,
		Nights:           nights,
		BookedAt:         pr.bookedAt,
		Status:           pr.status,
		Gross:            *pr.gross,
		Currency:         pr.currency,
		RawJSON:          raw,
	}, nil
}
