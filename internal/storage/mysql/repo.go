package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"staybook/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valDate(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.Format("2006-01-02")
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertReservation(ctx context.Context, rec domain.Reservation) (int64, error) {
	commission, err := json.Marshal(rec.Commission)
	if err != nil {
		return 0, fmt.Errorf("marshal commission: %w", err)
	}
	res, err := r.db.ExecContext(ctx, upsertReservationSQL,
		rec.ConfirmationCode,
		string(rec.Platform),
		valStr(rec.PropertyID),
		valStr(rec.UnitID),
		valStr(rec.GuestName),
		valStr(rec.GuestPhone),
		rec.Adults,
		rec.Children,
		rec.Infants,
		rec.CheckIn.Format("2006-01-02"),
		rec.CheckOut.Format("2006-01-02"),
		rec.Nights,
		valDate(rec.BookedAt),
		string(rec.Status),
		rec.Gross.StringFixed(2),
		rec.Currency,
		string(commission),
		string(rec.RawJSON),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) LogImport(ctx context.Context, l domain.ImportLog) error {
	_, err := r.db.ExecContext(ctx, insertImportLogSQL,
		l.BatchID,
		string(l.Platform),
		l.Total,
		l.Persisted,
		l.Rejected,
		l.Flagged,
		l.Cancelled,
		string(l.Detail),
	)
	return err
}

func (r *Repo) ResolveListing(ctx context.Context, name string) (domain.ListingRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ListingRef{}, domain.ErrNotFound
	}

	var unitID, propID string
	err := r.db.QueryRowContext(ctx, resolveUnitSQL, name).Scan(&unitID, &propID)
	if err == nil {
		return domain.ListingRef{UnitID: &unitID, PropertyID: &propID}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ListingRef{}, err
	}

	err = r.db.QueryRowContext(ctx, resolvePropertySQL, name).Scan(&propID)
	if err == nil {
		return domain.ListingRef{PropertyID: &propID}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ListingRef{}, err
	}

	// Exports sometimes truncate or decorate the listing name; fall back
	// to a substring match before giving up.
	pattern := "%" + name + "%"
	err = r.db.QueryRowContext(ctx, resolveUnitLikeSQL, pattern).Scan(&unitID, &propID)
	if err == nil {
		return domain.ListingRef{UnitID: &unitID, PropertyID: &propID}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ListingRef{}, err
	}

	err = r.db.QueryRowContext(ctx, resolvePropertyLikeSQL, pattern).Scan(&propID)
	if err == nil {
		return domain.ListingRef{PropertyID: &propID}, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ListingRef{}, domain.ErrNotFound
	}
	return domain.ListingRef{}, err
}

func (r *Repo) PropertyExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, propertyExistsSQL, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repo) GetRates(ctx context.Context, p domain.Platform) (domain.RateTable, error) {
	rows, err := r.db.QueryContext(ctx, selectRatesSQL, string(p))
	if err != nil {
		return domain.RateTable{}, err
	}
	defer rows.Close()

	rt := domain.RateTable{Platform: p, Rates: map[domain.StakeholderRole]decimal.Decimal{}}
	for rows.Next() {
		var role, rate string
		var residual bool
		if err := rows.Scan(&role, &rate, &residual); err != nil {
			return domain.RateTable{}, err
		}
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return domain.RateTable{}, fmt.Errorf("bad rate %q for role %s: %w", rate, role, err)
		}
		rt.Rates[domain.StakeholderRole(role)] = d
		if residual {
			rt.Residual = domain.StakeholderRole(role)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.RateTable{}, err
	}
	if len(rt.Rates) == 0 {
		return domain.RateTable{}, fmt.Errorf("platform %s: %w", p, domain.ErrRateNotConfigured)
	}
	if rt.Residual == "" {
		rt.Residual = domain.RoleOwner
	}
	return rt, nil
}

func (r *Repo) GetReservation(ctx context.Context, id int64) (domain.Reservation, error) {
	row := r.db.QueryRowContext(ctx, getReservationSQL, id)
	rec, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return rec, err
}

func (r *Repo) ListReservations(ctx context.Context, q domain.ReservationsQuery) (domain.ReservationsPage, error) {
	var (
		where []string
		args  []any
	)
	if q.PropertyID != nil {
		where = append(where, "property_id = ?")
		args = append(args, *q.PropertyID)
	}
	if q.UnitID != nil {
		where = append(where, "unit_id = ?")
		args = append(args, *q.UnitID)
	}
	if q.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*q.Status))
	}
	if q.Platform != nil {
		where = append(where, "source_platform = ?")
		args = append(args, string(*q.Platform))
	}
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)

	sqlStr := "SELECT" + reservationColumns + "FROM reservations"
	if len(where) > 0 {
		sqlStr += " WHERE " + strings.Join(where, " AND ")
	}
	sqlStr += " ORDER BY check_in DESC, id DESC LIMIT ?"

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return domain.ReservationsPage{}, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		rec, err := scanReservation(rows)
		if err != nil {
			return domain.ReservationsPage{}, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.ReservationsPage{}, err
	}
	return domain.ReservationsPage{Items: out}, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var (
		rec                    domain.Reservation
		platform, status       string
		propID, unitID         sql.NullString
		guestName, guestPhone  sql.NullString
		checkIn, checkOut      string
		bookedAt               sql.NullString
		gross                  string
		commissionRaw, rawJSON []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.ConfirmationCode,
		&platform,
		&propID,
		&unitID,
		&guestName,
		&guestPhone,
		&rec.Adults,
		&rec.Children,
		&rec.Infants,
		&checkIn,
		&checkOut,
		&rec.Nights,
		&bookedAt,
		&status,
		&gross,
		&rec.Currency,
		&commissionRaw,
		&rawJSON,
	); err != nil {
		return domain.Reservation{}, err
	}

	rec.Platform = domain.Platform(platform)
	rec.Status = domain.Status(status)
	if propID.Valid {
		s := propID.String
		rec.PropertyID = &s
	}
	if unitID.Valid {
		s := unitID.String
		rec.UnitID = &s
	}
	if guestName.Valid {
		s := guestName.String
		rec.GuestName = &s
	}
	if guestPhone.Valid {
		s := guestPhone.String
		rec.GuestPhone = &s
	}

	var err error
	if rec.CheckIn, err = parseDBDate(checkIn); err != nil {
		return domain.Reservation{}, err
	}
	if rec.CheckOut, err = parseDBDate(checkOut); err != nil {
		return domain.Reservation{}, err
	}
	if bookedAt.Valid {
		t, err := parseDBDate(bookedAt.String)
		if err != nil {
			return domain.Reservation{}, err
		}
		rec.BookedAt = &t
	}

	if rec.Gross, err = decimal.NewFromString(gross); err != nil {
		return domain.Reservation{}, fmt.Errorf("bad gross %q: %w", gross, err)
	}
	if len(commissionRaw) > 0 {
		if err := json.Unmarshal(commissionRaw, &rec.Commission); err != nil {
			return domain.Reservation{}, fmt.Errorf("bad commission payload: %w", err)
		}
	}
	if len(rawJSON) > 0 {
		rec.RawJSON = rawJSON
	}
	return rec, nil
}

// DATE columns come back as strings (no parseTime needed for date-only
// values) but some DSNs return full timestamps; accept both.
func parseDBDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad date %q", s)
}
