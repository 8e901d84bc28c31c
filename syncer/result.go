package syncer

import (
	"time"

	kerrors "github.com/jrsteele09/korebog/internal/errors"
)

// FailureKind classifies why a record was not synchronized.
type FailureKind string

const (
	FailureNetwork         FailureKind = "network"
	FailureRejected        FailureKind = "rejected"
	FailureUnauthenticated FailureKind = "unauthenticated"
	FailureStorage         FailureKind = "storage"
)

// Failure is one record that a pass could not synchronize.
type Failure struct {
	ID     string      `json:"id"`
	Reason string      `json:"reason"`
	Kind   FailureKind `json:"kind"`
}

// SyncResult summarizes one pass.
type SyncResult struct {
	PassID     string    `json:"pass_id"`
	Attempted  int       `json:"attempted"`
	Succeeded  int       `json:"succeeded"`
	Skipped    int       `json:"skipped"` // drafts
	Failures   []Failure `json:"failures"`
	Aborted    bool      `json:"aborted"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Complete reports whether the pass ran to the end without failures.
func (r SyncResult) Complete() bool {
	return !r.Aborted && len(r.Failures) == 0
}

func (r SyncResult) outcome() string {
	switch {
	case r.Aborted:
		return "aborted"
	case len(r.Failures) == 0:
		return "success"
	default:
		return "partial"
	}
}

func classify(err error) FailureKind {
	switch {
	case kerrors.Is(err, kerrors.ErrNotAuthenticated):
		return FailureUnauthenticated
	case kerrors.Is(err, kerrors.ErrRemoteRejected):
		return FailureRejected
	default:
		return FailureNetwork
	}
}

// Status is what the presentation layer shows about synchronization.
type Status struct {
	LastAttempted time.Time `json:"last_attempted"`
	LastSucceeded time.Time `json:"last_succeeded"`
	Pending       int       `json:"pending"`
}
