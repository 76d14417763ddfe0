package app

import "staybook/internal/domain"

type RowOutcome string

const (
	// OutcomePersisted: row written to the store with no warnings.
	OutcomePersisted RowOutcome = "persisted"
	// OutcomeFlagged: row written, but needs manual review (unknown
	// status and similar soft problems).
	OutcomeFlagged RowOutcome = "flagged"
	// OutcomeRejected: row never persisted; Errors says why.
	OutcomeRejected RowOutcome = "rejected"
	// OutcomeSkipped: batch aborted before the row was processed.
	OutcomeSkipped RowOutcome = "skipped"
)

// Stage names the pipeline stage a row stopped at.
type Stage string

const (
	StageParse      Stage = "parse"
	StageValidate   Stage = "validate"
	StageCommission Stage = "commission"
	StagePersist    Stage = "persist"
)

// RowResult is the diagnostic record for one row of a batch. Raw keeps
// the original line so an operator can fix and re-import it.
type RowResult struct {
	Line     int        `json:"line"`
	Code     string     `json:"code,omitempty"`
	Outcome  RowOutcome `json:"outcome"`
	Stage    Stage      `json:"stage,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
	Warnings []string   `json:"warnings,omitempty"`
	Raw      string     `json:"raw,omitempty"`
}

// Report is the batch-level result handed to the caller and recorded in
// import history. Fatal distinguishes a batch-level failure (exhausted
// persistence retries, missing rate table) from per-row rejections.
type Report struct {
	BatchID   string          `json:"batch_id"`
	Platform  domain.Platform `json:"platform"`
	Total     int             `json:"total"`
	Persisted int             `json:"persisted"`
	Rejected  int             `json:"rejected"`
	Flagged   int             `json:"flagged"`
	Cancelled bool            `json:"cancelled,omitempty"`
	Fatal     string          `json:"fatal,omitempty"`
	Rows      []RowResult     `json:"rows,omitempty"`
}
