package domain

import "time"

// RawReview is a single review as scraped from the upstream listing,
// before any cleaning. Held only until the normalizer consumes it.
type RawReview struct {
	BankCode   string
	ExternalID string
	Text       string
	Rating     int
	PostedAt   string
	PageIndex  int
}

// CleanReview is a normalized, deduplicated review. Never mutated after
// creation; a re-run with different content produces a new ContentHash.
type CleanReview struct {
	BankCode    string
	ExternalID  string
	Text        string
	Rating      int
	ReviewDate  string // date-only ISO-8601, UTC
	ContentHash string
}

// AnnotatedReview carries sentiment and topic labels on top of the
// cleaned record. TopicID is only comparable within the same bank.
type AnnotatedReview struct {
	CleanReview
	SentimentScore float64
	SentimentLabel SentimentLabel
	TopicID        int
	TopicLabel     string
	Keywords       []string
}

// SentimentLabel is the categorical polarity bucket.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "POSITIVE"
	SentimentNeutral  SentimentLabel = "NEUTRAL"
	SentimentNegative SentimentLabel = "NEGATIVE"
)

// TopicUnassigned marks records that were not covered by topic modeling
// (bank below the eligibility floor).
const TopicUnassigned = -1

// TopicSummary describes one fitted topic for one bank. Regenerated as
// a whole per bank on every annotator run.
type TopicSummary struct {
	BankCode     string
	TopicID      int
	Keywords     []string // most representative first
	ShareOfBank  float64  // sums to 1 across a bank's topics
	AvgSentiment float64
}

// Bank is one row of the pre-seeded bank dimension. The pipeline reads
// this table and never writes it.
type Bank struct {
	Code  string
	Name  string
	AppID string
}

// RejectReason codes for rows excluded by the loader.
type RejectReason string

const (
	RejectUnknownBank  RejectReason = "unknown_bank"
	RejectRatingRange  RejectReason = "rating_out_of_range"
	RejectScoreRange   RejectReason = "sentiment_out_of_range"
	RejectEmptyHash    RejectReason = "empty_content_hash"
)

// RejectedReview pairs an excluded row with the reason it was excluded.
type RejectedReview struct {
	Review AnnotatedReview
	Reason RejectReason
}

// LoadReport summarizes one load call: what was committed, what was
// excluded and why, and per-bank accepted counts.
type LoadReport struct {
	BatchID    string
	Accepted   int
	Rejected   []RejectedReview
	BankCounts map[string]int
}

// BankStats aggregates verifier figures for a single bank.
type BankStats struct {
	BankCode     string
	Reviews      int
	AvgRating    float64
	AvgSentiment float64
}

// IntegrityReport is the verifier's read-only output. Findings are
// advisory; the verifier never mutates data.
type IntegrityReport struct {
	TotalReviews int
	PerBank      []BankStats
	Violations   []IntegrityViolation
	GeneratedAt  time.Time
}

// OrphanCount returns the number of orphan-reference findings.
func (r IntegrityReport) OrphanCount() int {
	n := 0
	for _, v := range r.Violations {
		if v.Kind == ViolationOrphanBank {
			n++
		}
	}
	return n
}

// NormalizeSummary reports what the cleaning stage kept and dropped.
type NormalizeSummary struct {
	RawRows      int
	CleanRows    int
	DroppedEmpty int
	DroppedLang  int
	DroppedDate  int
	DroppedDupes int
}
