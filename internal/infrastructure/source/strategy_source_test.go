package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ReviewPulse/internal/config"
	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
	"ReviewPulse/internal/scanner"
	"ReviewPulse/internal/state"
)

type stubScanner struct {
	name     string
	requests []scanner.Request
	results  map[string][]domain.RawReview
	fail     map[string]error
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) Scan(_ context.Context, req scanner.Request) ([]domain.RawReview, error) {
	s.requests = append(s.requests, req)
	if err := s.fail[req.BankCode]; err != nil {
		return nil, err
	}
	return s.results[req.BankCode], nil
}

func testBanks() []config.BankConfig {
	return []config.BankConfig{
		{Code: "CBE", Name: "Commercial Bank of Ethiopia", AppID: "com.cbe.mobile"},
		{Code: "DASHEN", Name: "Dashen Bank", AppID: "com.dashen.mobile"},
	}
}

func newStub() *stubScanner {
	return &stubScanner{
		name: "stub",
		results: map[string][]domain.RawReview{
			"CBE":    {{BankCode: "CBE", ExternalID: "c1"}, {BankCode: "CBE", ExternalID: "c2"}},
			"DASHEN": {{BankCode: "DASHEN", ExternalID: "d1"}},
		},
		fail: map[string]error{},
	}
}

func newRegistry(s scanner.Scanner) *scanner.Registry {
	reg := scanner.NewRegistry()
	reg.Register(s)
	return reg
}

func TestFetchBatchAggregatesBanks(t *testing.T) {
	t.Parallel()

	stub := newStub()
	scrape := config.ScrapeConfig{ReviewsPerBank: 10, Lang: "en", Country: "et"}
	src := NewStrategySource(newRegistry(stub), "stub", testBanks(), scrape, nil, nil)

	known := ports.KnownReviews{"CBE": {"old-1": {}}}
	raws, err := src.FetchBatch(context.Background(), known)
	if err != nil {
		t.Fatalf("FetchBatch error: %v", err)
	}

	if len(raws) != 3 {
		t.Fatalf("expected 3 aggregated reviews, got %d", len(raws))
	}
	if len(stub.requests) != 2 {
		t.Fatalf("expected one scan per bank, got %d", len(stub.requests))
	}

	first := stub.requests[0]
	if first.BankCode != "CBE" || first.AppID != "com.cbe.mobile" {
		t.Fatalf("unexpected first request: %+v", first)
	}
	if first.TargetCount != 10 || first.Lang != "en" || first.Country != "et" {
		t.Fatalf("scrape config not threaded through: %+v", first)
	}
	if _, ok := first.KnownIDs["old-1"]; !ok {
		t.Fatal("known ids not passed to the scanner")
	}
	if second := stub.requests[1]; second.KnownIDs != nil {
		t.Fatal("bank without history should scan with empty known set")
	}
}

func TestFetchBatchAbortsOnScanError(t *testing.T) {
	t.Parallel()

	stub := newStub()
	stub.fail["CBE"] = &domain.FetchError{BankCode: "CBE", Page: 4, Attempts: 4, Err: errors.New("boom")}
	src := NewStrategySource(newRegistry(stub), "stub", testBanks(), config.ScrapeConfig{}, nil, nil)

	_, err := src.FetchBatch(context.Background(), nil)
	if err == nil {
		t.Fatal("expected scan failure to abort the batch")
	}
	if len(stub.requests) != 1 {
		t.Fatalf("expected no further banks after a failure, scanned %d", len(stub.requests))
	}
}

func TestFetchBatchRecordsAndClearsCheckpoints(t *testing.T) {
	t.Parallel()

	checkpoints := state.NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))

	stub := newStub()
	stub.fail["DASHEN"] = &domain.FetchError{BankCode: "DASHEN", Page: 6, Attempts: 4, Err: errors.New("boom")}
	src := NewStrategySource(newRegistry(stub), "stub", testBanks(), config.ScrapeConfig{}, checkpoints, nil)

	if _, err := src.FetchBatch(context.Background(), nil); err == nil {
		t.Fatal("expected failure")
	}
	if got := checkpoints.ResumePage("DASHEN"); got != 6 {
		t.Fatalf("expected resume page 6 recorded, got %d", got)
	}

	// The next run picks the recorded offset up and clears it on success.
	stub.fail = map[string]error{}
	stub.requests = nil
	if _, err := src.FetchBatch(context.Background(), nil); err != nil {
		t.Fatalf("second FetchBatch error: %v", err)
	}

	var dashenReq *scanner.Request
	for i := range stub.requests {
		if stub.requests[i].BankCode == "DASHEN" {
			dashenReq = &stub.requests[i]
		}
	}
	if dashenReq == nil || dashenReq.ResumePage != 6 {
		t.Fatalf("expected DASHEN to resume from page 6, got %+v", dashenReq)
	}
	if got := checkpoints.ResumePage("DASHEN"); got != 0 {
		t.Fatalf("expected checkpoint cleared after success, got %d", got)
	}
}

func TestFetchBatchUnknownStrategy(t *testing.T) {
	t.Parallel()

	src := NewStrategySource(scanner.NewRegistry(), "missing", testBanks(), config.ScrapeConfig{}, nil, nil)
	if _, err := src.FetchBatch(context.Background(), nil); err == nil {
		t.Fatal("expected error for unregistered strategy")
	}
}
