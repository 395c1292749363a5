package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepository persists annotated reviews and topic summaries.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

var _ ports.ReviewRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB, log *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  log,
	}
}

// Init creates tables if needed. Seeding the bank dimension stays an
// operational task outside the pipeline.
func (r *PostgresRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Banks reads the pre-seeded bank dimension.
func (r *PostgresRepository) Banks(ctx context.Context) ([]domain.Bank, error) {
	query, args, err := r.builder.
		Select("bank_code", "bank_name", "app_id").
		From("banks").
		OrderBy("bank_code").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build banks query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query banks: %w", err)
	}
	defer rows.Close()

	var banks []domain.Bank
	for rows.Next() {
		var b domain.Bank
		if err := rows.Scan(&b.Code, &b.Name, &b.AppID); err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		banks = append(banks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return banks, nil
}

// ExistingHashes returns the cumulative content-hash snapshot used as
// the normalizer's dedup index.
func (r *PostgresRepository) ExistingHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT content_hash FROM reviews`)
	if err != nil {
		return nil, fmt.Errorf("query hashes: %w", err)
	}
	defer rows.Close()

	hashes := map[string]struct{}{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		hashes[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return hashes, nil
}

// ExistingExternalIDs returns, per bank, the review ids already stored,
// so fetchers can stop early on incremental runs.
func (r *PostgresRepository) ExistingExternalIDs(ctx context.Context) (ports.KnownReviews, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT bank_code, external_id FROM reviews`)
	if err != nil {
		return nil, fmt.Errorf("query external ids: %w", err)
	}
	defer rows.Close()

	known := ports.KnownReviews{}
	for rows.Next() {
		var bank, id string
		if err := rows.Scan(&bank, &id); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		if known[bank] == nil {
			known[bank] = map[string]struct{}{}
		}
		known[bank][id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return known, nil
}

// Load validates the batch, commits valid rows and the per-bank topic
// replacement in one transaction, and reports rejected rows per reason.
// Conflicting content hashes are no-ops, making identical reloads
// idempotent.
func (r *PostgresRepository) Load(ctx context.Context, batchID string, reviews []domain.AnnotatedReview, topics []domain.TopicSummary) (domain.LoadReport, error) {
	report := domain.LoadReport{BatchID: batchID, BankCounts: map[string]int{}}

	banks, err := r.Banks(ctx)
	if err != nil {
		return report, err
	}
	dimension := make(map[string]struct{}, len(banks))
	for _, b := range banks {
		dimension[b.Code] = struct{}{}
	}

	accepted := make([]domain.AnnotatedReview, 0, len(reviews))
	for _, review := range reviews {
		if reason, ok := ValidateReview(review, dimension); !ok {
			report.Rejected = append(report.Rejected, domain.RejectedReview{Review: review, Reason: reason})
			continue
		}
		accepted = append(accepted, review)
	}

	topics, dropped := filterTopics(topics, dimension)
	for _, t := range dropped {
		if r.logger != nil {
			r.logger.Warn("topic summary dropped, unknown bank", "bank", t.BankCode, "topic", t.TopicID)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("begin load tx: %w", err)
	}
	defer tx.Rollback()

	for _, review := range accepted {
		inserted, err := r.insertReview(ctx, tx, batchID, review)
		if err != nil {
			return report, err
		}
		if inserted {
			report.Accepted++
			report.BankCounts[review.BankCode]++
		}
	}

	if err := r.replaceTopics(ctx, tx, batchID, topics); err != nil {
		return report, err
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("commit load tx: %w", err)
	}

	if r.logger != nil {
		r.logger.Info("batch loaded",
			"batch", batchID,
			"accepted", report.Accepted,
			"rejected", len(report.Rejected),
			"topics", len(topics),
		)
	}

	return report, nil
}

func (r *PostgresRepository) insertReview(ctx context.Context, tx *sql.Tx, batchID string, review domain.AnnotatedReview) (bool, error) {
	query, args, err := r.builder.
		Insert("reviews").
		Columns("bank_code", "external_id", "review_text", "rating", "review_date",
			"content_hash", "sentiment_score", "sentiment_label", "topic_id", "topic_label",
			"keywords", "batch_id").
		Values(review.BankCode, review.ExternalID, review.Text, review.Rating, review.ReviewDate,
			review.ContentHash, review.SentimentScore, string(review.SentimentLabel),
			review.TopicID, review.TopicLabel, pq.StringArray(review.Keywords), batchID).
		Suffix("ON CONFLICT (content_hash) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build review insert: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert review %s: %w", review.ContentHash, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// replaceTopics swaps each touched bank's summary set inside the load
// transaction so stale topics can never outlive their record set.
func (r *PostgresRepository) replaceTopics(ctx context.Context, tx *sql.Tx, batchID string, topics []domain.TopicSummary) error {
	touched := map[string]struct{}{}
	for _, t := range topics {
		touched[t.BankCode] = struct{}{}
	}

	for bank := range touched {
		query, args, err := r.builder.
			Delete("topic_summary").
			Where(sq.Eq{"bank_code": bank}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build topic delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete topics for %s: %w", bank, err)
		}
	}

	for _, t := range topics {
		query, args, err := r.builder.
			Insert("topic_summary").
			Columns("bank_code", "topic_id", "keywords", "share_of_bank", "avg_sentiment", "batch_id").
			Values(t.BankCode, t.TopicID, pq.StringArray(t.Keywords), t.ShareOfBank, t.AvgSentiment, batchID).
			ToSql()
		if err != nil {
			return fmt.Errorf("build topic insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert topic %s/%d: %w", t.BankCode, t.TopicID, err)
		}
	}

	return nil
}

// filterTopics splits summaries into insertable and unknown-bank rows.
// Summaries share the reviews' fate: a bank missing from the dimension
// is a row-level problem, and letting its rows reach the FK would roll
// back the whole batch.
func filterTopics(topics []domain.TopicSummary, banks map[string]struct{}) (kept, dropped []domain.TopicSummary) {
	kept = make([]domain.TopicSummary, 0, len(topics))
	for _, t := range topics {
		if _, ok := banks[t.BankCode]; !ok {
			dropped = append(dropped, t)
			continue
		}
		kept = append(kept, t)
	}
	return kept, dropped
}

// ValidateReview checks one row against the load rules. It is exported
// so the validation contract stays testable without a database.
func ValidateReview(review domain.AnnotatedReview, banks map[string]struct{}) (domain.RejectReason, bool) {
	if review.ContentHash == "" {
		return domain.RejectEmptyHash, false
	}
	if _, ok := banks[review.BankCode]; !ok {
		return domain.RejectUnknownBank, false
	}
	if review.Rating < 1 || review.Rating > 5 {
		return domain.RejectRatingRange, false
	}
	if review.SentimentScore < -1 || review.SentimentScore > 1 {
		return domain.RejectScoreRange, false
	}
	return "", true
}
