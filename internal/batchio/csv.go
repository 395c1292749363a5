package batchio

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ReviewPulse/internal/domain"
)

// Stage handoff files: one row per record, so the normalize, annotate
// and load stages can also run as separate invocations.

var cleanHeader = []string{
	"bank_code", "external_id", "review", "rating", "review_date", "content_hash",
}

var annotatedHeader = append(append([]string{}, cleanHeader...),
	"sentiment_score", "sentiment_label", "topic_id", "topic_label", "keywords",
)

const keywordSep = "|"

// WriteClean writes a cleaned batch to path, creating parent dirs.
func WriteClean(path string, reviews []domain.CleanReview) error {
	rows := make([][]string, 0, len(reviews))
	for _, r := range reviews {
		rows = append(rows, cleanRow(r))
	}
	return writeCSV(path, cleanHeader, rows)
}

// ReadClean loads a cleaned batch written by WriteClean.
func ReadClean(path string) ([]domain.CleanReview, error) {
	records, err := readCSV(path, cleanHeader)
	if err != nil {
		return nil, err
	}

	reviews := make([]domain.CleanReview, 0, len(records))
	for i, rec := range records {
		r, err := parseCleanRow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}

// WriteAnnotated writes an annotated batch to path.
func WriteAnnotated(path string, reviews []domain.AnnotatedReview) error {
	rows := make([][]string, 0, len(reviews))
	for _, r := range reviews {
		row := cleanRow(r.CleanReview)
		row = append(row,
			strconv.FormatFloat(r.SentimentScore, 'g', -1, 64),
			string(r.SentimentLabel),
			strconv.Itoa(r.TopicID),
			r.TopicLabel,
			strings.Join(r.Keywords, keywordSep),
		)
		rows = append(rows, row)
	}
	return writeCSV(path, annotatedHeader, rows)
}

// ReadAnnotated loads an annotated batch written by WriteAnnotated.
func ReadAnnotated(path string) ([]domain.AnnotatedReview, error) {
	records, err := readCSV(path, annotatedHeader)
	if err != nil {
		return nil, err
	}

	reviews := make([]domain.AnnotatedReview, 0, len(records))
	for i, rec := range records {
		clean, err := parseCleanRow(rec[:len(cleanHeader)])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}

		score, err := strconv.ParseFloat(rec[6], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad sentiment_score: %w", path, i+2, err)
		}
		topicID, err := strconv.Atoi(rec[8])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad topic_id: %w", path, i+2, err)
		}

		var keywords []string
		if rec[10] != "" {
			keywords = strings.Split(rec[10], keywordSep)
		}

		reviews = append(reviews, domain.AnnotatedReview{
			CleanReview:    clean,
			SentimentScore: score,
			SentimentLabel: domain.SentimentLabel(rec[7]),
			TopicID:        topicID,
			TopicLabel:     rec[9],
			Keywords:       keywords,
		})
	}
	return reviews, nil
}

func cleanRow(r domain.CleanReview) []string {
	return []string{
		r.BankCode,
		r.ExternalID,
		r.Text,
		strconv.Itoa(r.Rating),
		r.ReviewDate,
		r.ContentHash,
	}
}

func parseCleanRow(rec []string) (domain.CleanReview, error) {
	rating, err := strconv.Atoi(rec[3])
	if err != nil {
		return domain.CleanReview{}, fmt.Errorf("bad rating: %w", err)
	}

	return domain.CleanReview{
		BankCode:    rec[0],
		ExternalID:  rec[1],
		Text:        rec[2],
		Rating:      rating,
		ReviewDate:  rec[4],
		ContentHash: rec[5],
	}, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create batch dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}

	return f.Close()
}

func readCSV(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header", path)
	}

	for i, name := range header {
		if records[0][i] != name {
			return nil, fmt.Errorf("%s: unexpected header %q, want %q", path, records[0][i], name)
		}
	}

	return records[1:], nil
}
