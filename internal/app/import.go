package app

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"staybook/internal/adapters/observability"
	"staybook/internal/domain"
)

// ImportConfig bounds the resources one batch may use against the shared
// store.
type ImportConfig struct {
	Workers        int           // concurrent upsert keys
	Retries        int           // persistence retries after the first attempt
	PersistTimeout time.Duration // per upsert call
	UpsertRPS      int           // store write throttle
}

func (c ImportConfig) withDefaults() ImportConfig {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.Retries <= 0 {
		c.Retries = 2
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 5 * time.Second
	}
	if c.UpsertRPS <= 0 {
		c.UpsertRPS = 50
	}
	return c
}

type ImportService struct {
	repo  domain.ReservationRepository
	rates domain.RateProvider
	cache domain.Cache
	cfg   ImportConfig
	rl    *rate.Limiter
}

func NewImportService(repo domain.ReservationRepository, rates domain.RateProvider, cache domain.Cache, cfg ImportConfig) *ImportService {
	cfg = cfg.withDefaults()
	return &ImportService{
		repo:  repo,
		rates: rates,
		cache: cache,
		cfg:   cfg,
		rl:    rate.NewLimiter(rate.Limit(cfg.UpsertRPS), cfg.UpsertRPS),
	}
}

// Run drives one export file through parse -> validate -> compute ->
// persist and returns the batch report. Rows are independent: a bad row
// is rejected and the batch continues. Only exhausted persistence retries
// or a missing rate table abort the remaining rows.
//
// forcedProperty, when set, pins every row to that property instead of
// resolving the listing column per row.
func (s *ImportService) Run(ctx context.Context, platform domain.Platform, src io.Reader, forcedProperty *string) (Report, error) {
	rep := Report{BatchID: uuid.NewString(), Platform: platform}

	rows, err := ReadRows(src)
	if err != nil {
		return rep, fmt.Errorf("read export: %w", err)
	}
	rep.Total = len(rows)

	rt, err := s.rates.GetRates(ctx, platform)
	if err != nil {
		// No rates means no row can be computed; the whole batch stops
		// before any write.
		rep.Fatal = fmt.Sprintf("rate table: %v", err)
		s.finish(ctx, &rep, nil)
		return rep, nil
	}

	// Parse everything up front (pure, cheap), then group rows by upsert
	// key. Distinct keys run in parallel; rows that share a key stay in
	// file order so a re-exported row cannot lose to its older version.
	parsed := make([]parsedRow, len(rows))
	for i, row := range rows {
		parsed[i] = parseRow(platform, row)
	}

	groups := make(map[string][]int)
	var keys []string
	for i, pr := range parsed {
		k := pr.code
		if k == "" {
			k = fmt.Sprintf("\x00line-%d", pr.row.Line)
		}
		if _, seen := groups[k]; !seen {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	sort.Strings(keys)

	results := make([]RowResult, len(rows))

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		fatalOnce sync.Once
		mu        sync.Mutex
	)
	sem := semaphore.NewWeighted(int64(s.cfg.Workers))

	setFatal := func(msg string) {
		fatalOnce.Do(func() {
			mu.Lock()
			rep.Fatal = msg
			mu.Unlock()
			cancel()
		})
	}

	for _, k := range keys {
		idxs := groups[k]

		if err := sem.Acquire(batchCtx, 1); err != nil {
			break // batch cancelled; remaining rows stay skipped
		}

		wg.Add(1)
		go func(idxs []int) {
			defer wg.Done()
			defer sem.Release(1)

			for _, i := range idxs {
				if batchCtx.Err() != nil {
					return
				}
				results[i] = s.processRow(batchCtx, platform, parsed[i], forcedProperty, rt, setFatal)
			}
		}(idxs)
	}

	wg.Wait()

	for i := range results {
		if results[i].Outcome == "" {
			results[i] = RowResult{Line: parsed[i].row.Line, Code: parsed[i].code, Outcome: OutcomeSkipped, Raw: parsed[i].row.Raw}
		}
	}

	if ctx.Err() != nil && rep.Fatal == "" {
		rep.Cancelled = true
	}

	s.finish(ctx, &rep, results)
	return rep, nil
}

// processRow runs one row through validate -> compute -> persist and
// returns its diagnostic record.
func (s *ImportService) processRow(ctx context.Context, platform domain.Platform, pr parsedRow, forcedProperty *string, rt domain.RateTable, setFatal func(string)) RowResult {
	res := RowResult{Line: pr.row.Line, Code: pr.code, Raw: pr.row.Raw, Warnings: pr.warnings}

	rec, verrs := validateRow(ctx, s.repo, platform, pr, forcedProperty)
	if len(verrs) > 0 {
		res.Outcome = OutcomeRejected
		res.Stage = StageValidate
		for _, e := range verrs {
			res.Errors = append(res.Errors, e.Error())
		}
		observability.ObserveImportRow(string(platform), string(OutcomeRejected))
		return res
	}

	breakdown, err := computeCommission(rec.Gross, rt)
	if err != nil {
		res.Outcome = OutcomeRejected
		res.Stage = StageCommission
		res.Errors = append(res.Errors, err.Error())
		observability.ObserveImportRow(string(platform), string(OutcomeRejected))
		return res
	}
	rec.Commission = breakdown

	id, err := s.persist(ctx, rec)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Batch cancelled while this row was in flight; nothing was
			// written, so it stays skipped rather than rejected.
			res.Outcome = OutcomeSkipped
			res.Stage = StagePersist
			return res
		}
		res.Outcome = OutcomeRejected
		res.Stage = StagePersist
		res.Errors = append(res.Errors, err.Error())
		observability.ObserveImportRow(string(platform), "persist_failed")
		setFatal(fmt.Sprintf("persistence exhausted on line %d: %v", pr.row.Line, err))
		return res
	}

	// Successful persist: drop any cached view of this reservation so
	// readers never see a pre-import snapshot.
	s.invalidate(ctx, id, rec)

	if len(res.Warnings) > 0 {
		res.Outcome = OutcomeFlagged
		observability.ObserveImportRow(string(platform), string(OutcomeFlagged))
	} else {
		res.Outcome = OutcomePersisted
		observability.ObserveImportRow(string(platform), string(OutcomePersisted))
	}
	return res
}

// persist upserts one reservation with a per-call timeout, bounded
// retries and jittered backoff. Store throughput is capped by the shared
// limiter so a large batch cannot starve the API's database access.
func (s *ImportService) persist(ctx context.Context, rec domain.Reservation) (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if err := s.rl.Wait(ctx); err != nil {
			return 0, err
		}
		cctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
		id, err := s.repo.UpsertReservation(cctx, rec)
		cancel()
		if err == nil {
			return id, nil
		}
		lastErr = err
		observability.ObservePersistRetry(string(rec.Platform))
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if attempt < s.cfg.Retries && !sleepCtx(ctx, backoff(attempt)) {
			return 0, ctx.Err()
		}
	}
	return 0, lastErr
}

func (s *ImportService) invalidate(ctx context.Context, id int64, rec domain.Reservation) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, fmt.Sprintf("reservation:%d", id))
	if rec.PropertyID != nil {
		_ = s.cache.Del(ctx, fmt.Sprintf("reservations:prop:%s", *rec.PropertyID))
	}
	if rec.UnitID != nil {
		_ = s.cache.Del(ctx, fmt.Sprintf("reservations:unit:%s", *rec.UnitID))
	}
}

// finish tallies the report and writes the import_history audit row.
func (s *ImportService) finish(ctx context.Context, rep *Report, results []RowResult) {
	for _, r := range results {
		switch r.Outcome {
		case OutcomePersisted:
			rep.Persisted++
		case OutcomeFlagged:
			rep.Flagged++
		case OutcomeRejected:
			rep.Rejected++
		}
		// Only problem rows ship in the report; clean rows would bloat
		// it on large exports.
		if r.Outcome == OutcomeRejected || r.Outcome == OutcomeFlagged {
			rep.Rows = append(rep.Rows, r)
		}
	}
	observability.ObserveImportBatch(string(rep.Platform), rep.Fatal == "" && !rep.Cancelled)

	detail, err := json.Marshal(rep.Rows)
	if err != nil {
		log.Error().Err(err).Str("batch", rep.BatchID).Msg("marshal report detail failed")
	}
	logCtx := ctx
	if logCtx.Err() != nil {
		// The audit row must land even when the batch was cancelled.
		var cancelLog context.CancelFunc
		logCtx, cancelLog = context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
		defer cancelLog()
	}
	if err := s.repo.LogImport(logCtx, domain.ImportLog{
		BatchID:   rep.BatchID,
		Platform:  rep.Platform,
		Total:     rep.Total,
		Persisted: rep.Persisted,
		Rejected:  rep.Rejected,
		Flagged:   rep.Flagged,
		Cancelled: rep.Cancelled,
		Detail:    detail,
	}); err != nil {
		log.Warn().Err(err).Str("batch", rep.BatchID).Msg("record import history failed")
	}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff returns an exponential backoff delay with concurrency-safe
// jitter. Base doubles each attempt (200ms, 400ms, 800ms...), with up to
// +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
