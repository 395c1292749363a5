package playstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/scanner"
)

const backoffBase = 500 * time.Millisecond

// Scanner walks the paginated review listing of one app and extracts
// raw reviews. A Scan call always starts a fresh walk from ResumePage;
// it never resumes mid-sequence on its own.
type Scanner struct {
	baseURL    string
	client     *http.Client
	pageSize   int
	maxRetries int

	// sleep is swapped in tests so backoff does not slow them down.
	sleep func(time.Duration)
}

// NewScanner wires an HTTP client; pageSize defaults to 200.
func NewScanner(baseURL string, client *http.Client, pageSize, maxRetries int) *Scanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Scanner{
		baseURL:    baseURL,
		client:     client,
		pageSize:   pageSize,
		maxRetries: maxRetries,
		sleep:      time.Sleep,
	}
}

// Name identifies the strategy inside the registry.
func (s *Scanner) Name() string {
	return "google_play"
}

// Scan pages through the listing until enough new reviews are collected
// or the listing ends. Network I/O is the only side effect.
func (s *Scanner) Scan(ctx context.Context, req scanner.Request) ([]domain.RawReview, error) {
	if req.AppID == "" {
		return nil, fmt.Errorf("bank %s: empty app id", req.BankCode)
	}

	results := make([]domain.RawReview, 0, req.TargetCount)
	seen := map[string]struct{}{}
	fresh := 0

	for page := req.ResumePage; ; page++ {
		pageURL, err := s.buildPageURL(req, page)
		if err != nil {
			return nil, fmt.Errorf("bank %s: %w", req.BankCode, err)
		}

		doc, err := s.fetchDocument(ctx, req, page, pageURL)
		if err != nil {
			return nil, err
		}

		pageReviews := extractReviews(doc, req.BankCode, page)
		if len(pageReviews) == 0 {
			break
		}

		added := 0
		for _, review := range pageReviews {
			if _, ok := seen[review.ExternalID]; ok {
				continue
			}
			seen[review.ExternalID] = struct{}{}
			results = append(results, review)
			added++

			if _, known := req.KnownIDs[review.ExternalID]; !known {
				fresh++
			}
		}
		// Some listings clamp to their last page instead of going
		// empty; a page of only repeats means the walk is done.
		if added == 0 {
			break
		}

		if req.TargetCount > 0 && fresh >= req.TargetCount {
			break
		}
	}

	return results, nil
}

func (s *Scanner) buildPageURL(req scanner.Request, page int) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("id", req.AppID)
	q.Set("page", strconv.Itoa(page))
	q.Set("num", strconv.Itoa(s.pageSize))
	if req.Lang != "" {
		q.Set("hl", req.Lang)
	}
	if req.Country != "" {
		q.Set("gl", req.Country)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// fetchDocument retries transient failures with exponential backoff.
// Exhaustion surfaces a FetchError carrying the page index so the next
// run can resume from this offset.
func (s *Scanner) fetchDocument(ctx context.Context, req scanner.Request, page int, pageURL string) (*goquery.Document, error) {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			s.sleep(backoffBase << (attempt - 1))
		}

		doc, err := s.fetchOnce(ctx, req, pageURL)
		if err == nil {
			return doc, nil
		}

		var notFound *domain.SourceNotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}

		lastErr = err
	}

	return nil, &domain.FetchError{
		BankCode: req.BankCode,
		Page:     page,
		Attempts: s.maxRetries + 1,
		Err:      lastErr,
	}
}

func (s *Scanner) fetchOnce(ctx context.Context, scanReq scanner.Request, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "ReviewPulse/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request listing: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, &domain.SourceNotFoundError{BankCode: scanReq.BankCode, AppID: scanReq.AppID}
	default:
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractReviews(doc *goquery.Document, bankCode string, page int) []domain.RawReview {
	var collected []domain.RawReview

	doc.Find("div[data-review-id]").Each(func(i int, sel *goquery.Selection) {
		review, err := parseReview(sel, bankCode, page)
		if err != nil {
			return
		}
		collected = append(collected, review)
	})

	return collected
}

func parseReview(sel *goquery.Selection, bankCode string, page int) (domain.RawReview, error) {
	id, ok := sel.Attr("data-review-id")
	if !ok || id == "" {
		return domain.RawReview{}, fmt.Errorf("review node without id")
	}

	ratingRaw, _ := sel.Attr("data-rating")
	rating, err := strconv.Atoi(strings.TrimSpace(ratingRaw))
	if err != nil {
		return domain.RawReview{}, fmt.Errorf("review %s: bad rating %q", id, ratingRaw)
	}

	text := strings.TrimSpace(sel.Find(".review-body").First().Text())
	posted := strings.TrimSpace(sel.Find(".review-date").First().Text())

	return domain.RawReview{
		BankCode:   bankCode,
		ExternalID: id,
		Text:       text,
		Rating:     rating,
		PostedAt:   posted,
		PageIndex:  page,
	}, nil
}
