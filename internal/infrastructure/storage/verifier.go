package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
)

// Verifier runs read-only integrity queries against the persisted
// store. It exists to catch constraint-bypass bugs and manual edits;
// findings are reported, never repaired.
type Verifier struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

var _ ports.IntegrityChecker = (*Verifier)(nil)

// NewVerifier wires a sql.DB implementation.
func NewVerifier(db *sql.DB, log *slog.Logger) *Verifier {
	return &Verifier{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  log,
	}
}

// Verify collects row counts, per-bank aggregates and orphan findings.
func (v *Verifier) Verify(ctx context.Context) (domain.IntegrityReport, error) {
	report := domain.IntegrityReport{GeneratedAt: time.Now().UTC()}

	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews`).Scan(&report.TotalReviews); err != nil {
		return report, fmt.Errorf("count reviews: %w", err)
	}

	perBank, err := v.perBankStats(ctx)
	if err != nil {
		return report, err
	}
	report.PerBank = perBank

	orphans, err := v.orphanReferences(ctx)
	if err != nil {
		return report, err
	}
	report.Violations = append(report.Violations, orphans...)

	nulls, err := v.nullCriticalColumns(ctx)
	if err != nil {
		return report, err
	}
	report.Violations = append(report.Violations, nulls...)

	shares, err := v.topicShareSums(ctx)
	if err != nil {
		return report, err
	}
	report.Violations = append(report.Violations, shares...)

	if v.logger != nil {
		v.logger.Info("integrity verified",
			"total", report.TotalReviews,
			"banks", len(report.PerBank),
			"violations", len(report.Violations),
			"orphans", report.OrphanCount(),
		)
	}

	return report, nil
}

func (v *Verifier) perBankStats(ctx context.Context) ([]domain.BankStats, error) {
	query, args, err := v.builder.
		Select("b.bank_code", "COUNT(r.review_id)", "COALESCE(AVG(r.rating), 0)", "COALESCE(AVG(r.sentiment_score), 0)").
		From("banks b").
		LeftJoin("reviews r ON r.bank_code = b.bank_code").
		GroupBy("b.bank_code").
		OrderBy("b.bank_code").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build per-bank query: %w", err)
	}

	rows, err := v.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query per-bank stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.BankStats
	for rows.Next() {
		var s domain.BankStats
		if err := rows.Scan(&s.BankCode, &s.Reviews, &s.AvgRating, &s.AvgSentiment); err != nil {
			return nil, fmt.Errorf("scan bank stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return stats, nil
}

// orphanReferences finds reviews whose bank has no dimension row. The
// FK should make this impossible; that is exactly why it is checked.
func (v *Verifier) orphanReferences(ctx context.Context) ([]domain.IntegrityViolation, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT r.bank_code, COUNT(*)
		FROM reviews r
		LEFT JOIN banks b ON b.bank_code = r.bank_code
		WHERE b.bank_code IS NULL
		GROUP BY r.bank_code`)
	if err != nil {
		return nil, fmt.Errorf("query orphans: %w", err)
	}
	defer rows.Close()

	var violations []domain.IntegrityViolation
	for rows.Next() {
		var bank string
		var count int
		if err := rows.Scan(&bank, &count); err != nil {
			return nil, fmt.Errorf("scan orphan: %w", err)
		}
		violations = append(violations, domain.IntegrityViolation{
			Kind:   domain.ViolationOrphanBank,
			Detail: fmt.Sprintf("%d reviews reference unknown bank %q", count, bank),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return violations, nil
}

func (v *Verifier) nullCriticalColumns(ctx context.Context) ([]domain.IntegrityViolation, error) {
	var count int
	err := v.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reviews
		WHERE review_text = '' OR content_hash = '' OR sentiment_label = ''`).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("query null criticals: %w", err)
	}

	if count == 0 {
		return nil, nil
	}
	return []domain.IntegrityViolation{{
		Kind:   domain.ViolationNullCritical,
		Detail: fmt.Sprintf("%d reviews with empty critical columns", count),
	}}, nil
}

// topicShareSums checks that each bank's shares still sum to one.
func (v *Verifier) topicShareSums(ctx context.Context) ([]domain.IntegrityViolation, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT bank_code, SUM(share_of_bank)
		FROM topic_summary
		GROUP BY bank_code
		HAVING ABS(SUM(share_of_bank) - 1.0) > 1e-6`)
	if err != nil {
		return nil, fmt.Errorf("query share sums: %w", err)
	}
	defer rows.Close()

	var violations []domain.IntegrityViolation
	for rows.Next() {
		var bank string
		var sum float64
		if err := rows.Scan(&bank, &sum); err != nil {
			return nil, fmt.Errorf("scan share sum: %w", err)
		}
		violations = append(violations, domain.IntegrityViolation{
			Kind:   domain.ViolationShareSum,
			Detail: fmt.Sprintf("bank %s topic shares sum to %.6f", bank, sum),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return violations, nil
}
