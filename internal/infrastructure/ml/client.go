package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
)

// Client talks to an external inference service for contextual
// sentiment scoring. It is the optional heavy path; the annotator falls
// back to the lexicon scorer when this service misbehaves.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.SentimentScorer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Name identifies the scorer in logs and reports.
func (c *Client) Name() string {
	return "inference"
}

// Probe checks availability once at run start so the pipeline binds a
// single scorer per run instead of branching per record.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/healthz", nil)
	if err != nil {
		return &domain.ModelUnavailableError{Endpoint: c.endpoint, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ModelUnavailableError{Endpoint: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.ModelUnavailableError{Endpoint: c.endpoint, Err: fmt.Errorf("probe status %s", resp.Status)}
	}
	return nil
}

// Score sends the batch for scoring; scores are clamped into [-1,1] so
// both scorers share one declared range.
func (c *Client) Score(ctx context.Context, texts []string) ([]ports.SentimentResult, error) {
	payload := map[string]any{"texts": texts}

	var resp struct {
		Results []struct {
			Label string  `json:"label"`
			Score float64 `json:"score"`
		} `json:"results"`
	}

	if err := c.post(ctx, "/sentiment", payload, &resp); err != nil {
		return nil, err
	}

	if len(resp.Results) != len(texts) {
		return nil, fmt.Errorf("inference returned %d results for %d texts", len(resp.Results), len(texts))
	}

	results := make([]ports.SentimentResult, len(resp.Results))
	for i, r := range resp.Results {
		score := clamp(r.Score, -1, 1)
		results[i] = ports.SentimentResult{
			Score: score,
			Label: parseLabel(r.Label, score),
		}
	}
	return results, nil
}

func parseLabel(raw string, score float64) domain.SentimentLabel {
	switch domain.SentimentLabel(raw) {
	case domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative:
		return domain.SentimentLabel(raw)
	}

	// Service omitted or mangled the label; derive it from the score.
	switch {
	case score >= 0.05:
		return domain.SentimentPositive
	case score <= -0.05:
		return domain.SentimentNegative
	default:
		return domain.SentimentNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if v == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
