package annotate

import (
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"ReviewPulse/internal/config"
	"ReviewPulse/internal/domain"
)

const (
	ldaIterations = 100
	ldaAlpha      = 0.1
	ldaBeta       = 0.01

	// minEligibleDocs is the floor under which a bank gets no topic
	// model at all; matching records stay TopicUnassigned.
	minEligibleDocs = 3
)

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "am": {}, "an": {},
	"and": {}, "any": {}, "app": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"because": {}, "been": {}, "but": {}, "by": {}, "can": {}, "do": {}, "even": {},
	"for": {}, "from": {}, "get": {}, "has": {}, "have": {}, "how": {}, "i": {},
	"if": {}, "in": {}, "is": {}, "it": {}, "its": {}, "just": {}, "me": {},
	"my": {}, "now": {}, "of": {}, "on": {}, "one": {}, "only": {}, "or": {},
	"our": {}, "out": {}, "please": {}, "so": {}, "some": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"they": {}, "this": {}, "to": {}, "too": {}, "up": {}, "us": {}, "use": {},
	"very": {}, "was": {}, "we": {}, "what": {}, "when": {}, "which": {},
	"will": {}, "with": {}, "would": {}, "you": {}, "your": {},
}

// TopicModeler fits an independent topic model per bank. A fixed seed
// makes topic ids and keyword order reproducible for identical input.
type TopicModeler struct {
	cfg config.TopicsConfig
}

// NewTopicModeler validates and binds the topic configuration.
func NewTopicModeler(cfg config.TopicsConfig) *TopicModeler {
	if cfg.K <= 0 {
		cfg.K = 5
	}
	if cfg.MinDocsPerTopic <= 0 {
		cfg.MinDocsPerTopic = 10
	}
	if cfg.TopWords <= 0 {
		cfg.TopWords = 10
	}
	return &TopicModeler{cfg: cfg}
}

// FitBank assigns one topic per document and derives the bank's topic
// summaries. assignments[i] belongs to docs[i]; documents that fall out
// of the vocabulary keep TopicUnassigned. The summaries' shares sum to
// one whenever any document was assigned.
func (m *TopicModeler) FitBank(bankCode string, docs []string, sentiments []float64) ([]int, []domain.TopicSummary) {
	assignments := make([]int, len(docs))
	for i := range assignments {
		assignments[i] = domain.TopicUnassigned
	}

	corpus, vocab := buildCorpus(docs)
	if len(corpus.docs) < minEligibleDocs || len(vocab) == 0 {
		return assignments, nil
	}

	k := m.effectiveK(len(corpus.docs))
	model := fitLDA(corpus, len(vocab), k, m.cfg.Seed)

	// Map sampled topics back onto the original document order.
	counts := make(map[int]int, k)
	for di, origIdx := range corpus.origin {
		topic := model.dominantTopic(di)
		assignments[origIdx] = topic
		counts[topic]++
	}

	summaries := m.summarize(bankCode, model, vocab, counts, assignments, sentiments)
	return compactTopics(assignments, summaries)
}

// effectiveK shrinks K so every topic keeps non-trivial support.
func (m *TopicModeler) effectiveK(docCount int) int {
	k := m.cfg.K
	if supported := docCount / m.cfg.MinDocsPerTopic; supported < k {
		k = supported
	}
	if k < 1 {
		k = 1
	}
	return k
}

func (m *TopicModeler) summarize(bankCode string, model *ldaModel, vocab []string, counts map[int]int, assignments []int, sentiments []float64) []domain.TopicSummary {
	assigned := 0
	for _, c := range counts {
		assigned += c
	}
	if assigned == 0 {
		return nil
	}

	topicIDs := make([]int, 0, len(counts))
	for topic := range counts {
		topicIDs = append(topicIDs, topic)
	}
	sort.Ints(topicIDs)

	summaries := make([]domain.TopicSummary, 0, len(topicIDs))
	for _, topic := range topicIDs {
		var scores []float64
		for i, t := range assignments {
			if t == topic && i < len(sentiments) {
				scores = append(scores, sentiments[i])
			}
		}

		avg := 0.0
		if len(scores) > 0 {
			avg = stat.Mean(scores, nil)
		}

		summaries = append(summaries, domain.TopicSummary{
			BankCode:     bankCode,
			TopicID:      topic,
			Keywords:     model.topKeywords(topic, vocab, m.cfg.TopWords),
			ShareOfBank:  float64(counts[topic]) / float64(assigned),
			AvgSentiment: avg,
		})
	}

	return summaries
}

// compactTopics renumbers surviving topics to 0..n-1 so downstream ids
// are dense per bank regardless of which sampled topics kept support.
func compactTopics(assignments []int, summaries []domain.TopicSummary) ([]int, []domain.TopicSummary) {
	remap := make(map[int]int, len(summaries))
	for i := range summaries {
		remap[summaries[i].TopicID] = i
		summaries[i].TopicID = i
	}

	for i, t := range assignments {
		if t == domain.TopicUnassigned {
			continue
		}
		assignments[i] = remap[t]
	}

	return assignments, summaries
}

// TopicLabel renders the keyword list the way summaries display it.
func TopicLabel(keywords []string) string {
	return strings.Join(keywords, ", ")
}

// corpus is the tokenized bag-of-words view of one bank's documents.
// origin maps corpus index back to the caller's document index, since
// documents without in-vocabulary tokens are excluded from sampling.
type corpusData struct {
	docs   [][]int
	origin []int
}

func buildCorpus(docs []string) (corpusData, []string) {
	// Document frequency pass; rare tokens are noise for small corpora.
	minDF := 1
	if len(docs) >= 20 {
		minDF = 2
	}

	df := map[string]int{}
	tokenized := make([][]string, len(docs))
	for i, doc := range docs {
		tokens := topicTokens(doc)
		tokenized[i] = tokens
		inDoc := map[string]struct{}{}
		for _, t := range tokens {
			inDoc[t] = struct{}{}
		}
		for t := range inDoc {
			df[t]++
		}
	}

	vocab := make([]string, 0, len(df))
	for t, n := range df {
		if n >= minDF {
			vocab = append(vocab, t)
		}
	}
	sort.Strings(vocab)

	index := make(map[string]int, len(vocab))
	for i, t := range vocab {
		index[t] = i
	}

	var corpus corpusData
	for i, tokens := range tokenized {
		var ids []int
		for _, t := range tokens {
			if id, ok := index[t]; ok {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		corpus.docs = append(corpus.docs, ids)
		corpus.origin = append(corpus.origin, i)
	}

	return corpus, vocab
}

func topicTokens(doc string) []string {
	raw := Tokenize(doc)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) < 3 {
			continue
		}
		if _, stop := stopwords[t]; stop {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// ldaModel holds collapsed-Gibbs counts after sampling.
type ldaModel struct {
	k          int
	docTopic   [][]int // per doc: topic counts
	topicWord  [][]int // per topic: word counts
	topicTotal []int
}

// fitLDA runs seeded collapsed Gibbs sampling. Identical corpus and
// seed reproduce identical counts.
func fitLDA(corpus corpusData, vocabSize, k int, seed int64) *ldaModel {
	rng := rand.New(rand.NewSource(seed))

	model := &ldaModel{
		k:          k,
		docTopic:   make([][]int, len(corpus.docs)),
		topicWord:  make([][]int, k),
		topicTotal: make([]int, k),
	}
	for t := 0; t < k; t++ {
		model.topicWord[t] = make([]int, vocabSize)
	}

	// Random init.
	z := make([][]int, len(corpus.docs))
	for di, doc := range corpus.docs {
		model.docTopic[di] = make([]int, k)
		z[di] = make([]int, len(doc))
		for wi, w := range doc {
			t := rng.Intn(k)
			z[di][wi] = t
			model.docTopic[di][t]++
			model.topicWord[t][w]++
			model.topicTotal[t]++
		}
	}

	probs := make([]float64, k)
	for iter := 0; iter < ldaIterations; iter++ {
		for di, doc := range corpus.docs {
			for wi, w := range doc {
				old := z[di][wi]
				model.docTopic[di][old]--
				model.topicWord[old][w]--
				model.topicTotal[old]--

				var total float64
				for t := 0; t < k; t++ {
					p := (float64(model.docTopic[di][t]) + ldaAlpha) *
						(float64(model.topicWord[t][w]) + ldaBeta) /
						(float64(model.topicTotal[t]) + ldaBeta*float64(vocabSize))
					probs[t] = p
					total += p
				}

				target := rng.Float64() * total
				next := 0
				for acc := probs[0]; acc < target && next < k-1; {
					next++
					acc += probs[next]
				}

				z[di][wi] = next
				model.docTopic[di][next]++
				model.topicWord[next][w]++
				model.topicTotal[next]++
			}
		}
	}

	return model
}

func (m *ldaModel) dominantTopic(doc int) int {
	best, bestCount := 0, -1
	for t, c := range m.docTopic[doc] {
		if c > bestCount {
			best, bestCount = t, c
		}
	}
	return best
}

// topKeywords returns the n highest-weight tokens for a topic. Equal
// weights break ties lexicographically so keyword order is stable.
func (m *ldaModel) topKeywords(topic int, vocab []string, n int) []string {
	type weighted struct {
		token string
		count int
	}

	candidates := make([]weighted, 0, len(vocab))
	for w, c := range m.topicWord[topic] {
		if c > 0 {
			candidates = append(candidates, weighted{token: vocab[w], count: c})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].token < candidates[j].token
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}

	keywords := make([]string, len(candidates))
	for i, c := range candidates {
		keywords[i] = c.token
	}
	return keywords
}
