package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
)

const recordKeywords = 3

// Annotator attaches sentiment and per-bank topic labels to a clean
// batch. Scoring consults the content-hash cache first; the fallback
// scorer covers primary-scorer failures mid-run so a batch never aborts
// on inference trouble.
type Annotator struct {
	scorer   ports.SentimentScorer
	fallback ports.SentimentScorer
	cache    ports.SentimentCache
	topics   *TopicModeler
	logger   *slog.Logger
}

// NewAnnotator wires the bound scorer, the advisory cache and the topic
// modeler. fallback may equal scorer when only the lexicon is in play.
func NewAnnotator(scorer, fallback ports.SentimentScorer, cache ports.SentimentCache, topics *TopicModeler, log *slog.Logger) *Annotator {
	return &Annotator{
		scorer:   scorer,
		fallback: fallback,
		cache:    cache,
		topics:   topics,
		logger:   log,
	}
}

// Annotate scores every record, then fits topics independently per
// bank. The returned summaries replace any prior summaries for the
// banks present in the batch.
func (a *Annotator) Annotate(ctx context.Context, clean []domain.CleanReview) ([]domain.AnnotatedReview, []domain.TopicSummary, error) {
	annotated := make([]domain.AnnotatedReview, len(clean))
	for i, review := range clean {
		annotated[i] = domain.AnnotatedReview{
			CleanReview: review,
			TopicID:     domain.TopicUnassigned,
		}
	}

	if err := a.scoreBatch(ctx, annotated); err != nil {
		return nil, nil, err
	}

	summaries := a.modelTopics(annotated)
	a.attachKeywords(annotated)

	return annotated, summaries, nil
}

// scoreBatch resolves sentiment via cache, then scores the misses and
// writes them back. Cache read errors degrade to recomputation.
func (a *Annotator) scoreBatch(ctx context.Context, annotated []domain.AnnotatedReview) error {
	var missIdx []int
	hits := 0

	for i := range annotated {
		if a.cache != nil {
			res, ok, err := a.cache.Get(annotated[i].ContentHash)
			if err != nil {
				a.debug("cache read failed", "hash", annotated[i].ContentHash, "error", err)
			} else if ok {
				annotated[i].SentimentScore = res.Score
				annotated[i].SentimentLabel = res.Label
				hits++
				continue
			}
		}
		missIdx = append(missIdx, i)
	}

	a.info("sentiment cache consulted", "hits", hits, "misses", len(missIdx))

	if len(missIdx) == 0 {
		return nil
	}

	texts := make([]string, len(missIdx))
	for j, i := range missIdx {
		texts[j] = annotated[i].Text
	}

	results, err := a.score(ctx, texts)
	if err != nil {
		return fmt.Errorf("score batch: %w", err)
	}
	if len(results) != len(missIdx) {
		return fmt.Errorf("scorer returned %d results for %d texts", len(results), len(missIdx))
	}

	for j, i := range missIdx {
		annotated[i].SentimentScore = results[j].Score
		annotated[i].SentimentLabel = results[j].Label
		if a.cache != nil {
			if err := a.cache.Put(annotated[i].ContentHash, results[j]); err != nil {
				a.debug("cache write failed", "hash", annotated[i].ContentHash, "error", err)
			}
		}
	}

	return nil
}

func (a *Annotator) score(ctx context.Context, texts []string) ([]ports.SentimentResult, error) {
	results, err := a.scorer.Score(ctx, texts)
	if err == nil {
		return results, nil
	}

	if a.fallback == nil || a.fallback == a.scorer {
		return nil, err
	}

	a.warn("primary scorer failed, degrading", "scorer", a.scorer.Name(), "error", err)
	return a.fallback.Score(ctx, texts)
}

// modelTopics fits one isolated model per bank; banks are processed in
// sorted order so a run's log output and summary order are stable.
func (a *Annotator) modelTopics(annotated []domain.AnnotatedReview) []domain.TopicSummary {
	byBank := map[string][]int{}
	for i := range annotated {
		byBank[annotated[i].BankCode] = append(byBank[annotated[i].BankCode], i)
	}

	banks := make([]string, 0, len(byBank))
	for bank := range byBank {
		banks = append(banks, bank)
	}
	sort.Strings(banks)

	var all []domain.TopicSummary
	for _, bank := range banks {
		idx := byBank[bank]
		docs := make([]string, len(idx))
		scores := make([]float64, len(idx))
		for j, i := range idx {
			docs[j] = annotated[i].Text
			scores[j] = annotated[i].SentimentScore
		}

		assignments, summaries := a.topics.FitBank(bank, docs, scores)
		if len(summaries) == 0 {
			a.info("bank below topic floor, skipping", "bank", bank, "docs", len(docs))
			continue
		}

		labels := make(map[int]string, len(summaries))
		for _, s := range summaries {
			labels[s.TopicID] = TopicLabel(s.Keywords)
		}

		for j, i := range idx {
			annotated[i].TopicID = assignments[j]
			if label, ok := labels[assignments[j]]; ok {
				annotated[i].TopicLabel = label
			}
		}

		all = append(all, summaries...)
	}

	return all
}

func (a *Annotator) attachKeywords(annotated []domain.AnnotatedReview) {
	docs := make([]string, len(annotated))
	for i := range annotated {
		docs[i] = annotated[i].Text
	}
	for i, kw := range ExtractKeywords(docs, recordKeywords) {
		annotated[i].Keywords = kw
	}
}

func (a *Annotator) info(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}

func (a *Annotator) warn(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}

func (a *Annotator) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
