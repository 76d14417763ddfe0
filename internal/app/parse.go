package app

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"staybook/internal/domain"
)

var (
	ErrDateFormat   = errors.New("unrecognized or invalid date")
	ErrAmountFormat = errors.New("invalid amount")
)

/********** column alias registries (single source of truth) **********/

// Platform exports name the same column differently depending on the
// account locale; every alias we have seen is listed here.
var airbnbColumns = map[string][]string{
	"code":     {"Confirmation code", "Code de confirmation"},
	"status":   {"Status", "Statut"},
	"guest":    {"Guest name", "Nom du voyageur"},
	"contact":  {"Contact"},
	"adults":   {"# of adults", "# des adultes"},
	"children": {"# of children", "# des enfants"},
	"infants":  {"# of infants", "# des bébés"},
	"start":    {"Start date", "Date de début"},
	"end":      {"End date", "Date de fin"},
	"nights":   {"# of nights", "# des nuits"},
	"booked":   {"Booked", "Réservée"},
	"listing":  {"Listing", "Annonce"},
	"amount":   {"Earnings", "Amount", "Revenus"},
	"currency": {"Currency", "Devise"},
}

var directColumns = map[string][]string{
	"code":     {"confirmation_code"},
	"status":   {"status"},
	"guest":    {"guest_name"},
	"contact":  {"guest_phone"},
	"adults":   {"adults"},
	"children": {"children"},
	"infants":  {"infants"},
	"start":    {"check_in"},
	"end":      {"check_out"},
	"nights":   {"nights"},
	"booked":   {"booked_at"},
	"listing":  {"listing"},
	"amount":   {"gross_amount"},
	"currency": {"currency"},
}

var platformColumns = map[domain.Platform]map[string][]string{
	domain.PlatformAirbnb: airbnbColumns,
	domain.PlatformDirect: directColumns,
}

// Date layouts tried in order; the platform's native format comes first
// so ambiguous day/month values resolve the way the source writes them.
var platformDateLayouts = map[domain.Platform][]string{
	domain.PlatformAirbnb: {"01/02/2006", "2006-01-02", "02/01/2006"},
	domain.PlatformDirect: {"2006-01-02", "01/02/2006"},
}

/********** status vocabularies **********/

var airbnbStatus = map[string]domain.Status{
	"confirmed":              domain.StatusConfirmed,
	"confirmée":              domain.StatusConfirmed,
	"accepted":               domain.StatusConfirmed,
	"pending":                domain.StatusPending,
	"en attente":             domain.StatusPending,
	"awaiting payment":       domain.StatusPending,
	"cancelled":              domain.StatusCancelled,
	"canceled":               domain.StatusCancelled,
	"cancelled by guest":     domain.StatusCancelled,
	"cancelled by host":      domain.StatusCancelled,
	"annulée":                domain.StatusCancelled,
	"annulée par le voyageur": domain.StatusCancelled,
	"past guest":             domain.StatusCompleted,
	"voyageur passé":         domain.StatusCompleted,
	"completed":              domain.StatusCompleted,
	"terminée":               domain.StatusCompleted,
}

var directStatus = map[string]domain.Status{
	"pending":   domain.StatusPending,
	"confirmed": domain.StatusConfirmed,
	"cancelled": domain.StatusCancelled,
	"completed": domain.StatusCompleted,
}

var platformStatus = map[domain.Platform]map[string]domain.Status{
	domain.PlatformAirbnb: airbnbStatus,
	domain.PlatformDirect: directStatus,
}

/********** raw rows **********/

// ImportRow is one raw line from an export, before validation. Fields is
// keyed by the original header names.
type ImportRow struct {
	Line   int
	Fields map[string]string
	Raw    string
}

// ReadRows decodes a header-driven CSV export into raw rows. A UTF-8 BOM
// is tolerated; blank lines are skipped; rows keep their 1-based line
// number for diagnostics.
func ReadRows(r io.Reader) ([]ImportRow, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(3); err == nil &&
		len(head) == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("export has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	var rows []ImportRow
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep the malformed line as a row with no fields; the
			// orchestrator rejects it with the parser diagnostic.
			rows = append(rows, ImportRow{Line: line, Raw: err.Error()})
			continue
		}
		empty := true
		fields := make(map[string]string, len(headers))
		for i, h := range headers {
			if i >= len(rec) {
				break
			}
			v := strings.TrimSpace(rec[i])
			fields[h] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		rows = append(rows, ImportRow{Line: line, Fields: fields, Raw: strings.Join(rec, ",")})
	}
	return rows, nil
}

/********** parsed rows **********/

// parsedRow holds the typed fields of one row plus the diagnostics
// gathered while parsing. Errors reject the row; warnings only flag it.
type parsedRow struct {
	row ImportRow

	code     string
	guest    *string
	contact  *string
	adults   int
	children int
	infants  int
	checkIn  *time.Time
	checkOut *time.Time
	nights   int
	bookedAt *time.Time
	status   domain.Status
	gross    *decimal.Decimal
	currency string
	listing  string

	errs     []string
	warnings []string
}

func (p *parsedRow) errf(format string, args ...any) {
	p.errs = append(p.errs, fmt.Sprintf(format, args...))
}

func (p *parsedRow) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// field returns the first non-empty value among the platform's header
// aliases for a canonical field name.
func field(row ImportRow, cols map[string][]string, name string) string {
	for _, h := range cols[name] {
		if v := row.Fields[h]; v != "" {
			return v
		}
	}
	return ""
}

// parseRow converts one raw row into typed fields. Pure over the row; all
// format problems are collected, none aborts the rest of the row.
func parseRow(p domain.Platform, row ImportRow) parsedRow {
	cols, ok := platformColumns[p]
	if !ok {
		return parsedRow{row: row, errs: []string{fmt.Sprintf("no column mapping for platform %q", p)}}
	}

	out := parsedRow{row: row, status: domain.StatusUnknown, currency: "EUR"}
	out.code = field(row, cols, "code")
	out.listing = field(row, cols, "listing")
	out.guest = optStr(field(row, cols, "guest"))
	out.contact = optStr(field(row, cols, "contact"))
	out.adults = intOrDefault(field(row, cols, "adults"), 1)
	out.children = intOrDefault(field(row, cols, "children"), 0)
	out.infants = intOrDefault(field(row, cols, "infants"), 0)
	out.nights = intOrDefault(field(row, cols, "nights"), 0)

	if raw := field(row, cols, "currency"); raw != "" {
		out.currency = strings.ToUpper(raw)
	}

	if raw := field(row, cols, "start"); raw != "" {
		if d, err := parseDate(p, raw); err != nil {
			out.errf("start date %q: %v", raw, err)
		} else {
			out.checkIn = &d
		}
	}
	if raw := field(row, cols, "end"); raw != "" {
		if d, err := parseDate(p, raw); err != nil {
			out.errf("end date %q: %v", raw, err)
		} else {
			out.checkOut = &d
		}
	}
	if raw := field(row, cols, "booked"); raw != "" {
		if d, err := parseDate(p, raw); err != nil {
			// Booking date is informational; a bad one is not worth a
			// rejection.
			out.warnf("booked date %q: %v", raw, err)
		} else {
			out.bookedAt = &d
		}
	}

	if raw := field(row, cols, "amount"); raw != "" {
		if a, err := parseAmount(raw); err != nil {
			out.errf("amount %q: %v", raw, err)
		} else {
			out.gross = &a
		}
	}

	if raw := field(row, cols, "status"); raw != "" {
		st, known := mapStatus(p, raw)
		out.status = st
		if !known {
			out.warnf("unrecognized status %q, kept as %s for review", raw, domain.StatusUnknown)
		}
	} else {
		out.warnf("status missing, kept as %s for review", domain.StatusUnknown)
	}

	return out
}

// parseDate accepts the platform's date formats, native layout first.
// Calendar-invalid dates (Feb 30) fail every layout and are rejected.
func parseDate(p domain.Platform, raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range platformDateLayouts[p] {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrDateFormat
}

// parseAmount normalizes a locale-formatted money string into a decimal.
// Currency symbols, letters and spaces are stripped; both "." and "," are
// accepted as decimal separators. When both appear the rightmost is the
// decimal separator. A lone comma followed by exactly 3 digits is read as
// a thousands separator ("1,234" is 1234); a lone dot is always the
// decimal point.
func parseAmount(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	neg := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-':
			neg = true
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || s == "-" {
		return decimal.Decimal{}, ErrAmountFormat
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		// multiple dots are always thousands separators
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrAmountFormat
	}
	if neg || d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative gross amount", ErrAmountFormat)
	}
	return d, nil
}

// mapStatus maps a platform status onto the internal vocabulary. Unknown
// values never fail: they come back as StatusUnknown with known=false so
// the caller can flag the row for review.
func mapStatus(p domain.Platform, raw string) (st domain.Status, known bool) {
	vocab, ok := platformStatus[p]
	if !ok {
		return domain.StatusUnknown, false
	}
	if st, ok := vocab[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return st, true
	}
	return domain.StatusUnknown, false
}

/********** tiny helpers **********/

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intOrDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 0 {
		return n
	}
	return def
}
