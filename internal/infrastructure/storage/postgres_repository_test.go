package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"ReviewPulse/internal/domain"
)

func TestValidateReview(t *testing.T) {
	t.Parallel()

	banks := map[string]struct{}{"CBE": {}, "DASHEN": {}}

	valid := domain.AnnotatedReview{
		CleanReview: domain.CleanReview{
			BankCode:    "CBE",
			ExternalID:  "rev-1",
			Text:        "works fine",
			Rating:      4,
			ReviewDate:  "2026-08-01",
			ContentHash: "abc123",
		},
		SentimentScore: 0.4,
		SentimentLabel: domain.SentimentPositive,
	}

	if reason, ok := ValidateReview(valid, banks); !ok {
		t.Fatalf("valid review rejected with %s", reason)
	}

	cases := []struct {
		name   string
		mutate func(*domain.AnnotatedReview)
		want   domain.RejectReason
	}{
		{
			name:   "unknown bank",
			mutate: func(r *domain.AnnotatedReview) { r.BankCode = "NOTABANK" },
			want:   domain.RejectUnknownBank,
		},
		{
			name:   "rating too high",
			mutate: func(r *domain.AnnotatedReview) { r.Rating = 6 },
			want:   domain.RejectRatingRange,
		},
		{
			name:   "rating too low",
			mutate: func(r *domain.AnnotatedReview) { r.Rating = 0 },
			want:   domain.RejectRatingRange,
		},
		{
			name:   "sentiment above range",
			mutate: func(r *domain.AnnotatedReview) { r.SentimentScore = 1.2 },
			want:   domain.RejectScoreRange,
		},
		{
			name:   "sentiment below range",
			mutate: func(r *domain.AnnotatedReview) { r.SentimentScore = -1.01 },
			want:   domain.RejectScoreRange,
		},
		{
			name:   "empty content hash",
			mutate: func(r *domain.AnnotatedReview) { r.ContentHash = "" },
			want:   domain.RejectEmptyHash,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			review := valid
			tc.mutate(&review)

			reason, ok := ValidateReview(review, banks)
			if ok {
				t.Fatal("expected rejection")
			}
			if reason != tc.want {
				t.Fatalf("expected reason %s, got %s", tc.want, reason)
			}
		})
	}
}

func TestValidateReviewBoundaryScores(t *testing.T) {
	t.Parallel()

	banks := map[string]struct{}{"CBE": {}}
	review := domain.AnnotatedReview{
		CleanReview: domain.CleanReview{
			BankCode:    "CBE",
			Rating:      1,
			ContentHash: "abc",
		},
	}

	for _, score := range []float64{-1, 0, 1} {
		review.SentimentScore = score
		if reason, ok := ValidateReview(review, banks); !ok {
			t.Fatalf("boundary score %f rejected with %s", score, reason)
		}
	}
}

func TestFilterTopicsDropsUnknownBanks(t *testing.T) {
	t.Parallel()

	banks := map[string]struct{}{"CBE": {}}

	topics := []domain.TopicSummary{
		{BankCode: "CBE", TopicID: 0, ShareOfBank: 0.6},
		{BankCode: "NOTABANK", TopicID: 0, ShareOfBank: 1},
		{BankCode: "CBE", TopicID: 1, ShareOfBank: 0.4},
	}

	kept, dropped := filterTopics(topics, banks)

	if len(kept) != 2 {
		t.Fatalf("expected 2 kept summaries, got %d", len(kept))
	}
	for _, s := range kept {
		if s.BankCode != "CBE" {
			t.Fatalf("kept a summary for unknown bank %s", s.BankCode)
		}
	}
	if len(dropped) != 1 || dropped[0].BankCode != "NOTABANK" {
		t.Fatalf("unexpected dropped set: %+v", dropped)
	}
}

// testDB opens the integration database named by REVIEWPULSE_TEST_DSN
// and resets pipeline tables. Tests are skipped when the DSN is unset.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("REVIEWPULSE_TEST_DSN")
	if dsn == "" {
		t.Skip("REVIEWPULSE_TEST_DSN is not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresRepository(db, nil)
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	for _, stmt := range []string{
		`DELETE FROM topic_summary`,
		`DELETE FROM reviews`,
		`DELETE FROM banks`,
		`INSERT INTO banks (bank_code, bank_name, app_id) VALUES
			('CBE', 'Commercial Bank of Ethiopia', 'com.combanketh.mobilebanking'),
			('DASHEN', 'Dashen Bank', 'com.dashen.dashensuperapp')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("reset tables: %v", err)
		}
	}

	return db
}

func annotatedFixture(bank, id, hash string, rating int, score float64) domain.AnnotatedReview {
	label := domain.SentimentNeutral
	switch {
	case score >= 0.05:
		label = domain.SentimentPositive
	case score <= -0.05:
		label = domain.SentimentNegative
	}
	return domain.AnnotatedReview{
		CleanReview: domain.CleanReview{
			BankCode:    bank,
			ExternalID:  id,
			Text:        "integration fixture review",
			Rating:      rating,
			ReviewDate:  "2026-08-01",
			ContentHash: hash,
		},
		SentimentScore: score,
		SentimentLabel: label,
		TopicID:        0,
		TopicLabel:     "fixture",
		Keywords:       []string{"fixture"},
	}
}

func TestLoadIntegration(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewPostgresRepository(db, nil)

	reviews := []domain.AnnotatedReview{
		annotatedFixture("CBE", "r1", "hash-1", 5, 0.8),
		annotatedFixture("CBE", "r2", "hash-2", 1, -0.6),
		annotatedFixture("DASHEN", "r3", "hash-3", 3, 0.0),
		annotatedFixture("NOTABANK", "r4", "hash-4", 4, 0.1),
		annotatedFixture("CBE", "r5", "hash-5", 9, 0.1),
	}
	topics := []domain.TopicSummary{
		{BankCode: "CBE", TopicID: 0, Keywords: []string{"transfer"}, ShareOfBank: 0.5, AvgSentiment: 0.8},
		{BankCode: "CBE", TopicID: 1, Keywords: []string{"login"}, ShareOfBank: 0.5, AvgSentiment: -0.6},
		// A bank missing from the dimension must not take the batch down.
		{BankCode: "NOTABANK", TopicID: 0, Keywords: []string{"ghost"}, ShareOfBank: 1, AvgSentiment: 0},
	}

	report, err := repo.Load(ctx, "batch-1", reviews, topics)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if report.Accepted != 3 {
		t.Fatalf("expected 3 accepted rows, got %d", report.Accepted)
	}
	if len(report.Rejected) != 2 {
		t.Fatalf("expected 2 rejections, got %d", len(report.Rejected))
	}
	if report.BankCounts["CBE"] != 2 || report.BankCounts["DASHEN"] != 1 {
		t.Fatalf("unexpected bank counts: %v", report.BankCounts)
	}

	reasons := map[domain.RejectReason]int{}
	for _, r := range report.Rejected {
		reasons[r.Reason]++
	}
	if reasons[domain.RejectUnknownBank] != 1 || reasons[domain.RejectRatingRange] != 1 {
		t.Fatalf("unexpected rejection reasons: %v", reasons)
	}

	// Reloading the same batch is a no-op on conflicting hashes.
	again, err := repo.Load(ctx, "batch-2", reviews, topics)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if again.Accepted != 0 {
		t.Fatalf("expected idempotent reload, accepted %d", again.Accepted)
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reviews`).Scan(&total); err != nil {
		t.Fatalf("count reviews: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 stored reviews, got %d", total)
	}

	var topicCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM topic_summary WHERE bank_code = 'CBE'`).Scan(&topicCount); err != nil {
		t.Fatalf("count topics: %v", err)
	}
	if topicCount != 2 {
		t.Fatalf("expected 2 topic rows for CBE, got %d", topicCount)
	}

	var allTopics int
	if err := db.QueryRow(`SELECT COUNT(*) FROM topic_summary`).Scan(&allTopics); err != nil {
		t.Fatalf("count all topics: %v", err)
	}
	if allTopics != 2 {
		t.Fatalf("unknown-bank summary leaked into the store: %d rows", allTopics)
	}
}

func TestLoadReplacesTopicsIntegration(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewPostgresRepository(db, nil)

	first := []domain.TopicSummary{
		{BankCode: "CBE", TopicID: 0, Keywords: []string{"old"}, ShareOfBank: 1, AvgSentiment: 0},
	}
	if _, err := repo.Load(ctx, "batch-1", nil, first); err != nil {
		t.Fatalf("first load: %v", err)
	}

	second := []domain.TopicSummary{
		{BankCode: "CBE", TopicID: 0, Keywords: []string{"fresh"}, ShareOfBank: 0.6, AvgSentiment: 0.1},
		{BankCode: "CBE", TopicID: 1, Keywords: []string{"newer"}, ShareOfBank: 0.4, AvgSentiment: -0.1},
	}
	if _, err := repo.Load(ctx, "batch-2", nil, second); err != nil {
		t.Fatalf("second load: %v", err)
	}

	rows, err := db.Query(`SELECT topic_id FROM topic_summary WHERE bank_code = 'CBE' ORDER BY topic_id`)
	if err != nil {
		t.Fatalf("query topics: %v", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan topic: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 1 {
		t.Fatalf("expected replaced topic set [0 1], got %v", ids)
	}
}

func TestSnapshotsIntegration(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewPostgresRepository(db, nil)

	reviews := []domain.AnnotatedReview{
		annotatedFixture("CBE", "r1", "hash-1", 5, 0.8),
		annotatedFixture("DASHEN", "r2", "hash-2", 3, 0.0),
	}
	if _, err := repo.Load(ctx, "batch-1", reviews, nil); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	hashes, err := repo.ExistingHashes(ctx)
	if err != nil {
		t.Fatalf("ExistingHashes error: %v", err)
	}
	if _, ok := hashes["hash-1"]; !ok {
		t.Fatal("expected hash-1 in snapshot")
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 hashes, got %d", len(hashes))
	}

	known, err := repo.ExistingExternalIDs(ctx)
	if err != nil {
		t.Fatalf("ExistingExternalIDs error: %v", err)
	}
	if _, ok := known["CBE"]["r1"]; !ok {
		t.Fatal("expected CBE/r1 in known ids")
	}
	if _, ok := known["DASHEN"]["r2"]; !ok {
		t.Fatal("expected DASHEN/r2 in known ids")
	}

	banks, err := repo.Banks(ctx)
	if err != nil {
		t.Fatalf("Banks error: %v", err)
	}
	if len(banks) != 2 || banks[0].Code != "CBE" {
		t.Fatalf("unexpected bank dimension: %+v", banks)
	}
}

func TestVerifierIntegration(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewPostgresRepository(db, nil)

	reviews := []domain.AnnotatedReview{
		annotatedFixture("CBE", "r1", "hash-1", 5, 0.8),
		annotatedFixture("CBE", "r2", "hash-2", 3, 0.2),
	}
	topics := []domain.TopicSummary{
		{BankCode: "CBE", TopicID: 0, Keywords: []string{"transfer"}, ShareOfBank: 1, AvgSentiment: 0.5},
	}
	if _, err := repo.Load(ctx, "batch-1", reviews, topics); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	verifier := NewVerifier(db, nil)
	report, err := verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}

	if report.TotalReviews != 2 {
		t.Fatalf("expected 2 total reviews, got %d", report.TotalReviews)
	}
	if len(report.Violations) != 0 {
		t.Fatalf("expected clean report, got %v", report.Violations)
	}
	if report.OrphanCount() != 0 {
		t.Fatalf("expected no orphans, got %d", report.OrphanCount())
	}

	var cbe *domain.BankStats
	for i := range report.PerBank {
		if report.PerBank[i].BankCode == "CBE" {
			cbe = &report.PerBank[i]
		}
	}
	if cbe == nil {
		t.Fatal("missing CBE stats")
	}
	if cbe.Reviews != 2 {
		t.Fatalf("expected 2 CBE reviews, got %d", cbe.Reviews)
	}
	if cbe.AvgRating != 4 {
		t.Fatalf("expected avg rating 4, got %f", cbe.AvgRating)
	}

	// Break the share invariant out-of-band and confirm detection.
	if _, err := db.Exec(`UPDATE topic_summary SET share_of_bank = 0.3 WHERE bank_code = 'CBE'`); err != nil {
		t.Fatalf("mutate shares: %v", err)
	}
	report, err = verifier.Verify(ctx)
	if err != nil {
		t.Fatalf("second Verify error: %v", err)
	}

	found := false
	for _, v := range report.Violations {
		if v.Kind == domain.ViolationShareSum {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected share sum violation, got %v", report.Violations)
	}
}
