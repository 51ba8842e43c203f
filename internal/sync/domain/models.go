package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/harborlabs/cruisesync/internal/traveltek"
)

// ErrorKind classifies a failed fetch or merge for reporting.
type ErrorKind string

const (
	ErrorKindChannelUnavailable ErrorKind = "channel_unavailable"
	ErrorKindConnection         ErrorKind = "connection"
	ErrorKindTimeout            ErrorKind = "timeout"
	ErrorKindPathNotFound       ErrorKind = "path_not_found"
	ErrorKindFileNotFound       ErrorKind = "file_not_found"
	ErrorKindParse              ErrorKind = "parse_error"
	ErrorKindDatabase           ErrorKind = "database_error"
)

// ConnectionClass reports whether the kind indicates a transport problem
// as opposed to data or store trouble.
func (k ErrorKind) ConnectionClass() bool {
	switch k {
	case ErrorKindChannelUnavailable, ErrorKindConnection, ErrorKindTimeout:
		return true
	}
	return false
}

// IngestEvent is one webhook notification. Read once by the orchestrator
// and discarded; dedup happens before it is queued.
type IngestEvent struct {
	EventID    string
	EventType  string
	LineCode   string
	ReceivedAt time.Time
	RawPayload []byte
}

// SyncCandidate is a cruise the selection engine decided needs a refresh.
// Computed fresh per run, never persisted.
type SyncCandidate struct {
	CruiseID     snowflake.ID
	FeedCruiseID string
	LineCode     string
	ShipCode     string
	SailDate     time.Time
	HasPricing   bool
	LastPricedAt *time.Time
}

// FetchOutcome is the result of one attempted download, consumed
// immediately by the merge engine.
type FetchOutcome struct {
	Candidate SyncCandidate
	Document  *traveltek.Document
	ErrorKind ErrorKind
	Err       error
}

func (o FetchOutcome) OK() bool { return o.Document != nil && o.ErrorKind == "" }

// RecordError attributes one failure to a specific cruise.
type RecordError struct {
	FeedCruiseID string    `json:"feed_cruise_id"`
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
}

// RunStatus is the overall disposition of one orchestration run.
type RunStatus string

const (
	RunStatusCompleted    RunStatus = "completed"
	RunStatusPaused       RunStatus = "paused"
	RunStatusDeferred     RunStatus = "deferred"
	RunStatusDeduplicated RunStatus = "deduplicated"
)

// Health grades a completed run by its connection-error ratio.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthFailing  Health = "failing"
)

// ProcessingResult aggregates one run. It is reported once, then
// discarded; the lock holder owns it exclusively.
type ProcessingResult struct {
	LineCode string
	BatchID  string
	Status   RunStatus

	TotalSelected int
	Skipped       int
	Created       int
	Updated       int
	// ActuallyUpdated counts cruises whose replacement price-line set
	// differed in value from what was stored before.
	ActuallyUpdated int
	Failed          int

	Errors        []RecordError
	ErrorOverflow int // errors beyond the reportable sample
	// ConnectionErrors counts every transport-class failure, including
	// those dropped from the Errors sample.
	ConnectionErrors int

	StartedAt  time.Time
	FinishedAt time.Time
}

// MaxReportedErrors caps the errors[] sample in summaries.
const MaxReportedErrors = 5

// AddError records a failure, keeping at most MaxReportedErrors samples.
func (r *ProcessingResult) AddError(feedCruiseID string, kind ErrorKind, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if kind.ConnectionClass() {
		r.ConnectionErrors++
	}
	if len(r.Errors) < MaxReportedErrors {
		r.Errors = append(r.Errors, RecordError{
			FeedCruiseID: feedCruiseID,
			Kind:         kind,
			Message:      message,
		})
	} else {
		r.ErrorOverflow++
	}
}

// SuccessRate is actuallyUpdated over totalSelected.
func (r *ProcessingResult) SuccessRate() float64 {
	if r.TotalSelected == 0 {
		return 0
	}
	return float64(r.ActuallyUpdated) / float64(r.TotalSelected)
}
