package domain

import "fmt"

// FetchError signals that transient retries were exhausted while paging
// the upstream source. Page is the last index reached so the next run
// can resume from that offset.
type FetchError struct {
	BankCode string
	Page     int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: page %d failed after %d attempts: %v", e.BankCode, e.Page, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SourceNotFoundError signals a permanent upstream failure (unknown app
// identifier); retrying cannot help, the configuration must be fixed.
type SourceNotFoundError struct {
	BankCode string
	AppID    string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source for %s not found (app %s)", e.BankCode, e.AppID)
}

// ModelUnavailableError signals that the remote sentiment backend could
// not be reached; the run degrades to the lexicon scorer and continues.
type ModelUnavailableError struct {
	Endpoint string
	Err      error
}

func (e *ModelUnavailableError) Error() string {
	return fmt.Sprintf("sentiment model at %s unavailable: %v", e.Endpoint, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// ViolationKind classifies verifier findings.
type ViolationKind string

const (
	ViolationOrphanBank   ViolationKind = "orphan_bank_reference"
	ViolationNullCritical ViolationKind = "null_critical_column"
	ViolationShareSum     ViolationKind = "topic_share_sum"
)

// IntegrityViolation is a single verifier finding. Reported, never
// auto-repaired.
type IntegrityViolation struct {
	Kind   ViolationKind
	Detail string
}

func (v IntegrityViolation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}
