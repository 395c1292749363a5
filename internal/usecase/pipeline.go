package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"ReviewPulse/internal/batchio"
	"ReviewPulse/internal/domain"
	"ReviewPulse/internal/ports"
	"ReviewPulse/internal/state"
)

// Normalizer turns a raw batch into a duplicate-free clean batch.
type Normalizer interface {
	Normalize(raws []domain.RawReview, existing map[string]struct{}) ([]domain.CleanReview, domain.NormalizeSummary, error)
}

// Annotator attaches sentiment and topic labels to a clean batch.
type Annotator interface {
	Annotate(ctx context.Context, clean []domain.CleanReview) ([]domain.AnnotatedReview, []domain.TopicSummary, error)
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source      ports.ReviewSource
	Normalizer  Normalizer
	Annotator   Annotator
	Repository  ports.ReviewRepository
	Checker     ports.IntegrityChecker
	Checkpoints *state.Store
	DataDir     string
	Logger      *slog.Logger
}

// Pipeline implements the review ingestion-and-annotation workflow:
// fetch -> normalize -> annotate -> load -> verify, strictly in order.
// Any stage-level error aborts the run before the next stage starts.
type Pipeline struct {
	source      ports.ReviewSource
	normalizer  Normalizer
	annotator   Annotator
	repository  ports.ReviewRepository
	checker     ports.IntegrityChecker
	checkpoints *state.Store
	dataDir     string
	logger      *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:      deps.Source,
		normalizer:  deps.Normalizer,
		annotator:   deps.Annotator,
		repository:  deps.Repository,
		checker:     deps.Checker,
		checkpoints: deps.Checkpoints,
		dataDir:     deps.DataDir,
		logger:      deps.Logger,
	}
}

// ProcessBatch runs one full pipeline invocation.
func (p *Pipeline) ProcessBatch(ctx context.Context, now time.Time) error {
	batchID := uuid.NewString()
	p.info("batch starting", "batch", batchID, "at", now.UTC().Format(time.RFC3339))

	known, err := p.repository.ExistingExternalIDs(ctx)
	if err != nil {
		return fmt.Errorf("load known review ids: %w", err)
	}

	raws, err := p.source.FetchBatch(ctx, known)
	if err != nil {
		return fmt.Errorf("fetch stage: %w", err)
	}
	p.info("fetch done", "batch", batchID, "raw_reviews", len(raws))

	hashes, err := p.repository.ExistingHashes(ctx)
	if err != nil {
		return fmt.Errorf("load dedup snapshot: %w", err)
	}

	clean, summary, err := p.normalizer.Normalize(raws, hashes)
	if err != nil {
		return fmt.Errorf("normalize stage: %w", err)
	}
	p.writeStageFile(batchID, "clean", func(path string) error {
		return batchio.WriteClean(path, clean)
	})

	annotated, topics, err := p.annotator.Annotate(ctx, clean)
	if err != nil {
		return fmt.Errorf("annotate stage: %w", err)
	}
	p.info("annotate done", "batch", batchID, "reviews", len(annotated), "topics", len(topics))
	p.writeStageFile(batchID, "annotated", func(path string) error {
		return batchio.WriteAnnotated(path, annotated)
	})

	report, err := p.repository.Load(ctx, batchID, annotated, topics)
	if err != nil {
		return fmt.Errorf("load stage: %w", err)
	}
	p.logRejections(report)

	if p.checkpoints != nil {
		if err := p.checkpoints.RecordBatch(batchID); err != nil {
			p.warn("checkpoint batch record failed", "batch", batchID, "error", err)
		}
	}

	integrity, err := p.checker.Verify(ctx)
	if err != nil {
		return fmt.Errorf("verify stage: %w", err)
	}
	p.logIntegrity(integrity)

	p.info("batch complete",
		"batch", batchID,
		"raw", summary.RawRows,
		"clean", summary.CleanRows,
		"accepted", report.Accepted,
		"rejected", len(report.Rejected),
		"stored_total", integrity.TotalReviews,
	)
	return nil
}

// writeStageFile persists the stage handoff CSV when a data dir is
// configured. Handoff files are a convenience, not a stage gate, so
// failures are logged and the run continues.
func (p *Pipeline) writeStageFile(batchID, stage string, write func(path string) error) {
	if p.dataDir == "" {
		return
	}

	path := filepath.Join(p.dataDir, fmt.Sprintf("reviews_%s.csv", stage))
	if err := write(path); err != nil {
		p.warn("stage file write failed", "batch", batchID, "stage", stage, "error", err)
	}
}

func (p *Pipeline) logRejections(report domain.LoadReport) {
	for _, rejected := range report.Rejected {
		p.warn("row rejected",
			"batch", report.BatchID,
			"bank", rejected.Review.BankCode,
			"external_id", rejected.Review.ExternalID,
			"reason", string(rejected.Reason),
		)
	}
}

func (p *Pipeline) logIntegrity(report domain.IntegrityReport) {
	for _, v := range report.Violations {
		p.warn("integrity violation", "kind", string(v.Kind), "detail", v.Detail)
	}
	for _, stats := range report.PerBank {
		p.info("bank stored stats",
			"bank", stats.BankCode,
			"reviews", stats.Reviews,
			"avg_rating", stats.AvgRating,
			"avg_sentiment", stats.AvgSentiment,
		)
	}
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
