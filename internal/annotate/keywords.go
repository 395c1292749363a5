package annotate

import (
	"math"
	"sort"
)

// ExtractKeywords picks the topK most distinctive tokens per document
// using TF-IDF over the given document set. Ties break
// lexicographically, matching the topic keyword ordering.
func ExtractKeywords(docs []string, topK int) [][]string {
	if topK <= 0 {
		topK = 3
	}

	tokenized := make([][]string, len(docs))
	df := map[string]int{}
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

	n := float64(len(docs))
	out := make([][]string, len(docs))
	for i, tokens := range tokenized {
		if len(tokens) == 0 {
			continue
		}

		tf := map[string]int{}
		for _, t := range tokens {
			tf[t]++
		}

		type scored struct {
			token  string
			weight float64
		}
		candidates := make([]scored, 0, len(tf))
		for t, c := range tf {
			idf := math.Log((n + 1) / (float64(df[t]) + 1))
			candidates = append(candidates, scored{token: t, weight: float64(c) * (idf + 1)})
		}

		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].weight != candidates[b].weight {
				return candidates[a].weight > candidates[b].weight
			}
			return candidates[a].token < candidates[b].token
		})

		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		keywords := make([]string, len(candidates))
		for j, c := range candidates {
			keywords[j] = c.token
		}
		out[i] = keywords
	}

	return out
}
