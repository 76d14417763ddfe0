package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staybook/internal/domain"
)

// stubCatalog is a listingResolver backed by maps.
type stubCatalog struct {
	listings map[string]domain.ListingRef
	props    map[string]bool
	err      error
}

func (s *stubCatalog) ResolveListing(ctx context.Context, name string) (domain.ListingRef, error) {
	if s.err != nil {
		return domain.ListingRef{}, s.err
	}
	if ref, ok := s.listings[name]; ok {
		return ref, nil
	}
	return domain.ListingRef{}, domain.ErrNotFound
}

func (s *stubCatalog) PropertyExists(ctx context.Context, id string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.props[id], nil
}

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func validParsedRow() parsedRow {
	g := mustDec("1000.00")
	return parsedRow{
		code:     "HMABC12345",
		listing:  "Loft Vieux-Port",
		checkIn:  date("2024-06-01"),
		checkOut: date("2024-06-05"),
		status:   domain.StatusConfirmed,
		gross:    &g,
		currency: "EUR",
		adults:   2,
	}
}

func TestValidateRow_OK(t *testing.T) {
	cat := &stubCatalog{listings: map[string]domain.ListingRef{
		"Loft Vieux-Port": {PropertyID: strPtr("prop-1")},
	}}

	rec, errs := validateRow(context.Background(), cat, domain.PlatformAirbnb, validParsedRow(), nil)
	require.Empty(t, errs)
	assert.Equal(t, "HMABC12345", rec.ConfirmationCode)
	assert.Equal(t, "prop-1", *rec.PropertyID)
	// nights not present in the export, derived from the dates
	assert.Equal(t, 4, rec.Nights)
}

func TestValidateRow_CollectsEveryViolation(t *testing.T) {
	cat := &stubCatalog{}

	_, errs := validateRow(context.Background(), cat, domain.PlatformAirbnb, parsedRow{}, nil)
	fields := make(map[string]bool, len(errs))
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.Len(t, errs, 5)
	for _, f := range []string{"confirmation_code", "check_in", "check_out", "amount", "listing"} {
		assert.True(t, fields[f], "expected violation on %s", f)
	}
}

func TestValidateRow_EndBeforeStart(t *testing.T) {
	cat := &stubCatalog{listings: map[string]domain.ListingRef{
		"Loft Vieux-Port": {PropertyID: strPtr("prop-1")},
	}}

	pr := validParsedRow()
	pr.checkIn = date("2024-06-05")
	pr.checkOut = date("2024-06-01")

	_, errs := validateRow(context.Background(), cat, domain.PlatformAirbnb, pr, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "check_out", errs[0].Field)
}

func TestValidateRow_UnknownListing(t *testing.T) {
	cat := &stubCatalog{}

	_, errs := validateRow(context.Background(), cat, domain.PlatformAirbnb, validParsedRow(), nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "listing", errs[0].Field)
	assert.Contains(t, errs[0].Reason, "unknown listing")
}

func TestValidateRow_CatalogLookupFailure(t *testing.T) {
	cat := &stubCatalog{err: errors.New("db gone")}

	_, errs := validateRow(context.Background(), cat, domain.PlatformAirbnb, validParsedRow(), nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Reason, "catalog lookup failed")
}

func TestValidateRow_ForcedProperty(t *testing.T) {
	cat := &stubCatalog{props: map[string]bool{"prop-9": true}}

	// The listing column is ignored entirely when the batch is pinned.
	pr := validParsedRow()
	pr.listing = ""

	rec, errs := validateRow(context.Background(), cat, domain.PlatformAirbnb, pr, strPtr("prop-9"))
	require.Empty(t, errs)
	assert.Equal(t, "prop-9", *rec.PropertyID)

	_, errs = validateRow(context.Background(), cat, domain.PlatformAirbnb, pr, strPtr("prop-404"))
	require.Len(t, errs, 1)
	assert.Equal(t, "property", errs[0].Field)
}

func strPtr(s string) *string { return &s }
