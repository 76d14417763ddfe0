//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/shopspring/decimal"

	"staybook/internal/domain"
	mysqlrepo "staybook/internal/storage/mysql"
)

// ---------- small helpers ----------
func pstr(s string) *string { return &s }

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/migrations)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

// ---------- the test ----------
func TestRepo_MySQL_UpsertAndQuery(t *testing.T) {
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=staybook",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "staybook")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)

	repo := mysqlrepo.New(db)
	ctx := context.Background()

	// Arrange — seed catalog and rates
	if _, err := db.Exec(`INSERT INTO properties (id, name) VALUES ('prop-1', 'Loft Vieux-Port')`); err != nil {
		t.Fatalf("seed property: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO units (id, property_id, name) VALUES ('unit-1', 'prop-1', 'Loft Vieux-Port - Studio A')`); err != nil {
		t.Fatalf("seed unit: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO commission_rates (source_platform, role, rate, is_residual) VALUES
		('airbnb', 'platform', 0.150000, 0),
		('airbnb', 'operator', 0.100000, 0),
		('airbnb', 'owner',    0.000000, 1)`); err != nil {
		t.Fatalf("seed rates: %v", err)
	}

	// Catalog lookups
	ref, err := repo.ResolveListing(ctx, "Loft Vieux-Port - Studio A")
	if err != nil {
		t.Fatalf("ResolveListing unit: %v", err)
	}
	if ref.UnitID == nil || *ref.UnitID != "unit-1" {
		t.Fatalf("expected unit-1, got %+v", ref)
	}

	ref, err = repo.ResolveListing(ctx, "Loft Vieux-Port")
	if err != nil {
		t.Fatalf("ResolveListing property: %v", err)
	}
	if ref.PropertyID == nil || *ref.PropertyID != "prop-1" || ref.UnitID != nil {
		t.Fatalf("expected prop-1, got %+v", ref)
	}

	if _, err := repo.ResolveListing(ctx, "No Such Listing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ok, err := repo.PropertyExists(ctx, "prop-1")
	if err != nil || !ok {
		t.Fatalf("PropertyExists(prop-1): ok=%v err=%v", ok, err)
	}

	// Rate table
	rt, err := repo.GetRates(ctx, domain.PlatformAirbnb)
	if err != nil {
		t.Fatalf("GetRates: %v", err)
	}
	if rt.Residual != domain.RoleOwner {
		t.Fatalf("expected owner residual, got %s", rt.Residual)
	}
	if !rt.Rates[domain.RolePlatform].Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("unexpected platform rate: %s", rt.Rates[domain.RolePlatform])
	}

	if _, err := repo.GetRates(ctx, domain.PlatformBooking); !errors.Is(err, domain.ErrRateNotConfigured) {
		t.Fatalf("expected ErrRateNotConfigured for booking, got %v", err)
	}

	// Reservation upsert: same key twice must stay one row, same id.
	rec := domain.Reservation{
		ConfirmationCode: "HMABC12345",
		Platform:         domain.PlatformAirbnb,
		PropertyID:       pstr("prop-1"),
		GuestName:        pstr("Ana Martin"),
		Adults:           2,
		CheckIn:          day("2024-06-01"),
		CheckOut:         day("2024-06-05"),
		Nights:           4,
		Status:           domain.StatusConfirmed,
		Gross:            decimal.RequireFromString("1000.00"),
		Currency:         "EUR",
		Commission: domain.CommissionBreakdown{
			Shares: map[domain.StakeholderRole]decimal.Decimal{
				domain.RolePlatform: decimal.RequireFromString("150.00"),
				domain.RoleOperator: decimal.RequireFromString("100.00"),
				domain.RoleOwner:    decimal.RequireFromString("750.00"),
			},
			Residual: domain.RoleOwner,
		},
		RawJSON: []byte(`{}`),
	}
	id1, err := repo.UpsertReservation(ctx, rec)
	if err != nil {
		t.Fatalf("UpsertReservation: %v", err)
	}

	rec.Gross = decimal.RequireFromString("1200.00")
	id2, err := repo.UpsertReservation(ctx, rec)
	if err != nil {
		t.Fatalf("UpsertReservation (re-import): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("upsert created a second row: %d vs %d", id1, id2)
	}

	got, err := repo.GetReservation(ctx, id1)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if !got.Gross.Equal(decimal.RequireFromString("1200.00")) {
		t.Fatalf("re-import did not overwrite gross: %s", got.Gross)
	}
	if !got.Commission.Total().Equal(decimal.RequireFromString("1000.00")) {
		t.Fatalf("commission payload mangled: %+v", got.Commission)
	}

	page, err := repo.ListReservations(ctx, domain.ReservationsQuery{PropertyID: pstr("prop-1"), Limit: 10})
	if err != nil {
		t.Fatalf("ListReservations: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(page.Items))
	}

	// Import history
	if err := repo.LogImport(ctx, domain.ImportLog{
		BatchID:  "11111111-2222-3333-4444-555555555555",
		Platform: domain.PlatformAirbnb,
		Total:    1, Persisted: 1,
		Detail: []byte(`[]`),
	}); err != nil {
		t.Fatalf("LogImport: %v", err)
	}

	// Optional: small sleep to let CURRENT_TIMESTAMP settle in container clocks
	time.Sleep(50 * time.Millisecond)
}
