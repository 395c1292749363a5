package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"ReviewPulse/internal/config"
	"ReviewPulse/internal/domain"
)

// asciiEnglishRatio is the share of ASCII characters above which a text
// is accepted as English without further inspection.
const asciiEnglishRatio = 0.85

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Normalizer cleans raw reviews, canonicalizes their timestamps and
// removes duplicates against the cumulative hash snapshot.
type Normalizer struct {
	quality config.QualityConfig
	logger  *slog.Logger
}

// New builds a Normalizer. Zero-valued quality thresholds disable the
// corresponding guardrails.
func New(quality config.QualityConfig, log *slog.Logger) *Normalizer {
	return &Normalizer{quality: quality, logger: log}
}

// Normalize converts a raw batch into a duplicate-free clean batch in
// first-seen order. existing is the cumulative content-hash snapshot
// from prior runs; hashes already in it are dropped as duplicates.
func (n *Normalizer) Normalize(raws []domain.RawReview, existing map[string]struct{}) ([]domain.CleanReview, domain.NormalizeSummary, error) {
	summary := domain.NormalizeSummary{RawRows: len(raws)}
	seen := make(map[string]struct{}, len(existing)+len(raws))
	for hash := range existing {
		seen[hash] = struct{}{}
	}

	clean := make([]domain.CleanReview, 0, len(raws))
	perBank := map[string]int{}
	rawBanks := map[string]struct{}{}

	for _, raw := range raws {
		rawBanks[raw.BankCode] = struct{}{}

		text := CleanText(raw.Text)
		if text == "" {
			summary.DroppedEmpty++
			continue
		}
		if !IsEnglish(text) {
			summary.DroppedLang++
			continue
		}

		reviewDate, err := CanonicalDate(raw.PostedAt)
		if err != nil {
			summary.DroppedDate++
			continue
		}

		hash := ContentHash(raw.BankCode, raw.ExternalID, text, raw.Rating)
		if _, dup := seen[hash]; dup {
			summary.DroppedDupes++
			continue
		}
		seen[hash] = struct{}{}

		clean = append(clean, domain.CleanReview{
			BankCode:    raw.BankCode,
			ExternalID:  raw.ExternalID,
			Text:        text,
			Rating:      raw.Rating,
			ReviewDate:  reviewDate,
			ContentHash: hash,
		})
		perBank[raw.BankCode]++
	}

	summary.CleanRows = len(clean)
	n.logSummary(summary, perBank)

	if err := n.enforceThresholds(summary, perBank, rawBanks); err != nil {
		return nil, summary, err
	}

	return clean, summary, nil
}

func (n *Normalizer) logSummary(summary domain.NormalizeSummary, perBank map[string]int) {
	if n.logger == nil {
		return
	}
	n.logger.Info("normalize done",
		"raw", summary.RawRows,
		"clean", summary.CleanRows,
		"dropped_empty", summary.DroppedEmpty,
		"dropped_lang", summary.DroppedLang,
		"dropped_date", summary.DroppedDate,
		"dropped_dupes", summary.DroppedDupes,
	)
	for bank, count := range perBank {
		n.logger.Debug("bank cleaned rows", "bank", bank, "count", count)
	}
}

// enforceThresholds aborts the stage when cleaning lost too much data.
// Duplicates do not count against the drop ratio; re-fetching known
// reviews is expected on incremental runs.
func (n *Normalizer) enforceThresholds(summary domain.NormalizeSummary, perBank map[string]int, rawBanks map[string]struct{}) error {
	if n.quality.MaxDropRatio > 0 && summary.RawRows > 0 {
		dropped := summary.DroppedEmpty + summary.DroppedLang + summary.DroppedDate
		ratio := float64(dropped) / float64(summary.RawRows)
		if ratio > n.quality.MaxDropRatio {
			return fmt.Errorf("drop ratio %.3f exceeds limit %.3f; inspect cleaning rules", ratio, n.quality.MaxDropRatio)
		}
	}

	// The minimum is checked against every bank that appeared in the raw
	// input, so a bank whose rows were all dropped reads as zero rather
	// than slipping past the guard.
	if n.quality.MinReviewsPerBank > 0 {
		for bank := range rawBanks {
			if count := perBank[bank]; count < n.quality.MinReviewsPerBank {
				return fmt.Errorf("bank %s has %d cleaned reviews, need at least %d", bank, count, n.quality.MinReviewsPerBank)
			}
		}
	}

	return nil
}

// CleanText collapses whitespace runs and strips control characters
// while preserving the original casing for topic keyword readability.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range text {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}

	return strings.TrimSpace(b.String())
}

// IsEnglish is a cheap heuristic, not detection: mostly-ASCII text
// passes, script-heavy text (e.g. Amharic) is dropped.
func IsEnglish(text string) bool {
	if text == "" {
		return false
	}

	runes := []rune(text)
	ascii := 0
	letters := 0
	for _, r := range runes {
		if r < 128 {
			ascii++
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}

	if letters < 3 {
		return false
	}
	return float64(ascii)/float64(len(runes)) >= asciiEnglishRatio
}

// CanonicalDate reduces an upstream timestamp to date-only ISO-8601 in
// UTC. Time-of-day precision is dropped deliberately.
func CanonicalDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty timestamp")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02"), nil
		}
	}

	return "", fmt.Errorf("unparseable timestamp %q", raw)
}

// ContentHash is the dedup and cache key: a deterministic digest of
// bank code, external id, cleaned text and rating. Rating participates
// so the same text with a changed rating stays a distinct record.
func ContentHash(bankCode, externalID, text string, rating int) string {
	h := sha256.New()
	for _, part := range []string{bankCode, externalID, text, strconv.Itoa(rating)} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}
