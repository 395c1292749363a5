package scanner

import (
	"context"
	"fmt"

	"ReviewPulse/internal/domain"
)

// Request carries all parameters required to scan one bank's reviews.
type Request struct {
	BankCode    string
	AppID       string
	TargetCount int
	ResumePage  int
	Lang        string
	Country     string
	// KnownIDs are external review ids already persisted; the scan
	// stops once TargetCount reviews outside this set are collected.
	KnownIDs map[string]struct{}
}

// Scanner captures a single source strategy (Google Play today; an App
// Store strategy would register alongside it).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.RawReview, error)
}

// Registry holds the available scanners keyed by Name. The configured
// source strategy is resolved against it at fetch time, so adding a
// store means registering one more Scanner here.
type Registry struct {
	byName map[string]Scanner
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Scanner{}}
}

// Register installs sc under its Name, replacing any earlier entry.
func (r *Registry) Register(sc Scanner) {
	if r.byName == nil {
		r.byName = map[string]Scanner{}
	}
	r.byName[sc.Name()] = sc
}

func (r *Registry) Resolve(name string) (Scanner, error) {
	sc, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("no scanner registered as %q", name)
	}
	return sc, nil
}
