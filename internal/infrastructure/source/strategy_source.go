package source

import (
	"context"
	"fmt"
	"log/slog"

	"ReviewPulse/internal/config"
	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
	"ReviewPulse/internal/scanner"
	"ReviewPulse/internal/state"
)

// StrategySource implements ReviewSource via registered scanner
// strategies, one scan per configured bank.
type StrategySource struct {
	registry    *scanner.Registry
	strategy    string
	banks       []config.BankConfig
	scrape      config.ScrapeConfig
	checkpoints *state.Store
	logger      *slog.Logger
}

var _ ports.ReviewSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined banks.
func NewStrategySource(reg *scanner.Registry, strategy string, banks []config.BankConfig, scrape config.ScrapeConfig, checkpoints *state.Store, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry:    reg,
		strategy:    strategy,
		banks:       banks,
		scrape:      scrape,
		checkpoints: checkpoints,
		logger:      log,
	}
}

// FetchBatch iterates over configured banks and executes their scans.
// A FetchError from one bank aborts the batch; the failing page offset
// is recorded in the checkpoint store before the error propagates.
func (s *StrategySource) FetchBatch(ctx context.Context, known ports.KnownReviews) ([]domain.RawReview, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	strategy, err := s.registry.Resolve(s.strategy)
	if err != nil {
		return nil, err
	}

	s.debug("fetch batch", "banks", len(s.banks), "target_per_bank", s.scrape.ReviewsPerBank)

	var aggregated []domain.RawReview
	for _, bank := range s.banks {
		req := scanner.Request{
			BankCode:    bank.Code,
			AppID:       bank.AppID,
			TargetCount: s.scrape.ReviewsPerBank,
			ResumePage:  s.resumePage(bank.Code),
			Lang:        s.scrape.Lang,
			Country:     s.scrape.Country,
			KnownIDs:    known[bank.Code],
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			s.recordFailure(bank.Code, err)
			return nil, fmt.Errorf("scan bank %s: %w", bank.Code, err)
		}

		s.clearCheckpoint(bank.Code)
		s.debug("bank produced reviews", "bank", bank.Code, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "total_reviews", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) resumePage(bankCode string) int {
	if s.checkpoints == nil {
		return 0
	}
	return s.checkpoints.ResumePage(bankCode)
}

func (s *StrategySource) recordFailure(bankCode string, err error) {
	if s.checkpoints == nil {
		return
	}
	if saveErr := s.checkpoints.RecordFetchFailure(bankCode, err); saveErr != nil {
		s.debug("checkpoint save failed", "bank", bankCode, "error", saveErr)
	}
}

func (s *StrategySource) clearCheckpoint(bankCode string) {
	if s.checkpoints == nil {
		return
	}
	if err := s.checkpoints.ClearBank(bankCode); err != nil {
		s.debug("checkpoint clear failed", "bank", bankCode, "error", err)
	}
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
