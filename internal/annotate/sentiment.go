package annotate

import (
	"bufio"
	"context"
	_ "embed"
	"math"
	"strconv"
	"strings"

	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
)

//go:embed lexicon.txt
var lexiconRaw string

const (
	// neutralBand bounds the NEUTRAL label around zero.
	neutralBand = 0.05
	// normAlpha dampens the raw valence sum into [-1,1].
	normAlpha = 15.0
	// negationWindow is how many tokens back a negator still flips
	// the valence of the current token.
	negationWindow = 3
	// negationFactor scales a flipped valence; a negated "great" is
	// weaker than a plain "bad".
	negationFactor = 0.74
)

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "cannot": {}, "cant": {},
	"dont": {}, "doesnt": {}, "didnt": {}, "wont": {}, "isnt": {}, "wasnt": {},
}

// LexiconScorer is the always-available light scorer: an embedded
// valence lexicon with negation handling. Scores land in [-1,1].
type LexiconScorer struct {
	valences map[string]float64
}

var _ ports.SentimentScorer = (*LexiconScorer)(nil)

// NewLexiconScorer parses the embedded lexicon once.
func NewLexiconScorer() *LexiconScorer {
	valences := make(map[string]float64, 128)

	sc := bufio.NewScanner(strings.NewReader(lexiconRaw))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		valences[fields[0]] = v
	}

	return &LexiconScorer{valences: valences}
}

// Name identifies the scorer in logs and reports.
func (s *LexiconScorer) Name() string {
	return "lexicon"
}

// Score computes one result per input text, in order. It never fails.
func (s *LexiconScorer) Score(_ context.Context, texts []string) ([]ports.SentimentResult, error) {
	results := make([]ports.SentimentResult, len(texts))
	for i, text := range texts {
		score := s.scoreText(text)
		results[i] = ports.SentimentResult{Score: score, Label: Label(score)}
	}
	return results, nil
}

func (s *LexiconScorer) scoreText(text string) float64 {
	tokens := Tokenize(text)

	var sum float64
	for i, tok := range tokens {
		valence, ok := s.valences[tok]
		if !ok {
			continue
		}
		if negatedAt(tokens, i) {
			valence = -valence * negationFactor
		}
		sum += valence
	}

	if sum == 0 {
		return 0
	}
	return sum / math.Sqrt(sum*sum+normAlpha)
}

func negatedAt(tokens []string, i int) bool {
	lo := i - negationWindow
	if lo < 0 {
		lo = 0
	}
	for _, tok := range tokens[lo:i] {
		if _, ok := negators[tok]; ok {
			return true
		}
	}
	return false
}

// Label buckets a score into the categorical polarity.
func Label(score float64) domain.SentimentLabel {
	switch {
	case score >= neutralBand:
		return domain.SentimentPositive
	case score <= -neutralBand:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

// Tokenize lowercases and splits on non-letter runs, dropping
// apostrophes so "don't" matches the lexicon's "dont".
func Tokenize(text string) []string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "'", "")
	text = strings.ReplaceAll(text, "’", "")

	return strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	})
}
