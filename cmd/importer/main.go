package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"staybook/internal/adapters/observability"
	redisad "staybook/internal/adapters/redis"
	"staybook/internal/app"
	"staybook/internal/domain"
	"staybook/internal/shared"
	mysqlrepo "staybook/internal/storage/mysql"
)

func main() {
	var (
		file     = flag.String("file", "", "path to the CSV export to import")
		platform = flag.String("platform", "airbnb", "source platform of the export (direct|airbnb|booking)")
		property = flag.String("property", "", "pin every row to this property id instead of resolving listings")
	)
	flag.Parse()

	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	if *file == "" {
		log.Fatal().Msg("-file is required")
	}

	// Ctrl-C cancels the batch; rows already persisted stay committed
	// and the report is marked cancelled.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("file", *file).
		Str("platform", *platform).
		Int("workers", cfg.Workers).
		Msg("importer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	imp := app.NewImportService(repo, repo, cache, app.ImportConfig{
		Workers:        cfg.Workers,
		Retries:        cfg.UpsertRetries,
		PersistTimeout: cfg.PersistTimeout,
		UpsertRPS:      cfg.UpsertRPS,
	})

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("open export failed")
	}
	defer f.Close()

	var forced *string
	if *property != "" {
		forced = property
	}

	rep, err := imp.Run(ctx, domain.Platform(*platform), f, forced)
	if err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}

	ev := log.Info()
	if rep.Fatal != "" {
		ev = log.Error().Str("fatal", rep.Fatal)
	} else if rep.Cancelled {
		ev = log.Warn().Bool("cancelled", true)
	}
	ev.
		Str("batch", rep.BatchID).
		Int("total", rep.Total).
		Int("persisted", rep.Persisted).
		Int("flagged", rep.Flagged).
		Int("rejected", rep.Rejected).
		Msg("import finished")

	for _, row := range rep.Rows {
		log.Warn().
			Int("line", row.Line).
			Str("code", row.Code).
			Str("outcome", string(row.Outcome)).
			Str("stage", string(row.Stage)).
			Strs("errors", row.Errors).
			Strs("warnings", row.Warnings).
			Msg("row needs attention")
	}

	if rep.Fatal != "" {
		os.Exit(1)
	}
}
