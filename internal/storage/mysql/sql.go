package mysql

// Upsert keyed on (confirmation_code, source_platform): re-importing the
// same export overwrites the computed fields instead of duplicating rows.
// LAST_INSERT_ID(id) makes ExecContext report the row id on updates too.
const upsertReservationSQL = `
INSERT INTO reservations
  (confirmation_code, source_platform, property_id, unit_id,
   guest_name, guest_phone, adults, children, infants,
   check_in, check_out, nights, booked_at,
   status, gross, currency, commission, raw)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  id          = LAST_INSERT_ID(id),
  property_id = VALUES(property_id),
  unit_id     = VALUES(unit_id),
  guest_name  = COALESCE(VALUES(guest_name), reservations.guest_name),
  guest_phone = COALESCE(VALUES(guest_phone), reservations.guest_phone),
  adults      = VALUES(adults),
  children    = VALUES(children),
  infants     = VALUES(infants),
  check_in    = VALUES(check_in),
  check_out   = VALUES(check_out),
  nights      = VALUES(nights),
  booked_at   = COALESCE(VALUES(booked_at), reservations.booked_at),
  status      = VALUES(status),
  gross       = VALUES(gross),
  currency    = VALUES(currency),
  commission  = VALUES(commission),
  raw         = VALUES(raw),
  updated_at  = CURRENT_TIMESTAMP
`

const insertImportLogSQL = `
INSERT INTO import_history
  (batch_id, source_platform, total_rows, persisted_rows, rejected_rows, flagged_rows, cancelled, detail)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// CATALOG LOOKUPS
// -----------------------------------------------------------------------------

// Listing names from exports may match a unit of a multi-unit property
// or a whole property; units win.
const resolveUnitSQL = `
SELECT id, property_id FROM units WHERE name = ? LIMIT 1
`

const resolveUnitLikeSQL = `
SELECT id, property_id FROM units WHERE name LIKE ? LIMIT 1
`

const resolvePropertySQL = `
SELECT id FROM properties WHERE name = ? LIMIT 1
`

const resolvePropertyLikeSQL = `
SELECT id FROM properties WHERE name LIKE ? LIMIT 1
`

const propertyExistsSQL = `
SELECT 1 FROM properties WHERE id = ?
`

// -----------------------------------------------------------------------------
// RATE TABLE
// -----------------------------------------------------------------------------

const selectRatesSQL = `
SELECT role, rate, is_residual
FROM commission_rates
WHERE source_platform = ?
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const reservationColumns = `
  id, confirmation_code, source_platform, property_id, unit_id,
  guest_name, guest_phone, adults, children, infants,
  check_in, check_out, nights, booked_at,
  status, gross, currency, commission, raw
`

const getReservationSQL = `
SELECT` + reservationColumns + `
FROM reservations
WHERE id = ?
`
