package ports

import (
	"context"
	"time"

	"ReviewPulse/internal/domain"
)

// KnownReviews maps bank code to the set of external review ids already
// persisted, so fetchers can stop early on incremental runs.
type KnownReviews map[string]map[string]struct{}

// ReviewSource pulls fresh raw reviews from upstream listings.
type ReviewSource interface {
	FetchBatch(ctx context.Context, known KnownReviews) ([]domain.RawReview, error)
}

// ReviewRepository persists annotated reviews and exposes the snapshots
// the earlier stages dedup against.
type ReviewRepository interface {
	Banks(ctx context.Context) ([]domain.Bank, error)
	ExistingHashes(ctx context.Context) (map[string]struct{}, error)
	ExistingExternalIDs(ctx context.Context) (KnownReviews, error)
	Load(ctx context.Context, batchID string, reviews []domain.AnnotatedReview, topics []domain.TopicSummary) (domain.LoadReport, error)
}

// IntegrityChecker runs read-only checks against the persisted store.
type IntegrityChecker interface {
	Verify(ctx context.Context) (domain.IntegrityReport, error)
}

// SentimentResult is one scorer output.
type SentimentResult struct {
	Score float64
	Label domain.SentimentLabel
}

// SentimentScorer computes polarity for a batch of texts, one result
// per input in order.
type SentimentScorer interface {
	Name() string
	Score(ctx context.Context, texts []string) ([]SentimentResult, error)
}

// SentimentCache is the cross-run content_hash -> score store. Advisory:
// a missing or empty cache forces full recomputation, never a failure.
type SentimentCache interface {
	Get(hash string) (SentimentResult, bool, error)
	Put(hash string, res SentimentResult) error
	Close() error
}

// Scheduler controls when pipeline batches execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
