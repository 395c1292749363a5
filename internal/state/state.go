package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ReviewPulse/internal/domain"
)

// Checkpoint is the on-disk resume record for one pipeline deployment.
// Banks holds the last failed page per bank; LastBatchID identifies the
// most recently committed batch.
type Checkpoint struct {
	LastBatchID string               `json:"last_batch_id,omitempty"`
	Banks       map[string]BankState `json:"banks,omitempty"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// BankState records where a bank's fetch walk stopped.
type BankState struct {
	ResumePage int    `json:"resume_page"`
	LastError  string `json:"last_error,omitempty"`
}

// Store reads and writes the checkpoint file. All methods are best
// effort in the sense that a missing file is an empty checkpoint.
type Store struct {
	path string
}

// NewStore binds a checkpoint file path. Empty path disables persistence.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the checkpoint; a missing file yields a zero checkpoint.
func (s *Store) Load() (Checkpoint, error) {
	var cp Checkpoint
	if s.path == "" {
		return cp, nil
	}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cp, nil
	}
	if err != nil {
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}

	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, nil
}

// ResumePage returns the recorded page offset for a bank, or 0.
func (s *Store) ResumePage(bankCode string) int {
	cp, err := s.Load()
	if err != nil {
		return 0
	}
	return cp.Banks[bankCode].ResumePage
}

// RecordFetchFailure persists the page a bank's fetch stopped at so the
// next run can resume from that offset.
func (s *Store) RecordFetchFailure(bankCode string, cause error) error {
	var fetchErr *domain.FetchError
	if !errors.As(cause, &fetchErr) {
		return nil
	}

	return s.update(func(cp *Checkpoint) {
		if cp.Banks == nil {
			cp.Banks = map[string]BankState{}
		}
		cp.Banks[bankCode] = BankState{
			ResumePage: fetchErr.Page,
			LastError:  fetchErr.Error(),
		}
	})
}

// ClearBank drops a bank's resume record after a successful scan.
func (s *Store) ClearBank(bankCode string) error {
	return s.update(func(cp *Checkpoint) {
		delete(cp.Banks, bankCode)
	})
}

// RecordBatch remembers the last committed batch id.
func (s *Store) RecordBatch(batchID string) error {
	return s.update(func(cp *Checkpoint) {
		cp.LastBatchID = batchID
	})
}

func (s *Store) update(mutate func(*Checkpoint)) error {
	if s.path == "" {
		return nil
	}

	cp, err := s.Load()
	if err != nil {
		return err
	}

	mutate(&cp)
	cp.UpdatedAt = time.Now().UTC()

	raw, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
