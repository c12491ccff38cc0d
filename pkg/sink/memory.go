package sink

import (
	"context"
	"encoding/hex"
	"errors"
	"log"

	"github.com/sfim/ledger/pkg/ledger"
)

// MemorySink persists commits to an in-process ledger.Store — used for
// tests and single-process demos where a Postgres instance is overkill.
type MemorySink struct {
	store  ledger.Store
	logger *log.Logger
}

func NewMemorySink(store *ledger.MemoryStore, logger *log.Logger) *MemorySink {
	if logger == nil {
		logger = log.New(log.Writer(), "[Sink] ", log.LstdFlags)
	}
	return &MemorySink{store: store, logger: logger}
}

func (s *MemorySink) OnCommit(ctx context.Context, result *CommitResult) error {
	event := &ledger.IntegrityEvent{
		MerkleRoot:          hex.EncodeToString(result.Digest),
		AggregatedSignature: hex.EncodeToString(result.AggregatedSignature),
		NodeID:              result.NodeID,
		ConsensusRound:      result.Sequence,
		Status:              ledger.StatusCommitted,
	}

	err := s.store.PutEvent(ctx, event)
	if errors.Is(err, ledger.ErrDuplicateRoot) {
		return nil // idempotent: already recorded, not an error
	}
	if err != nil {
		s.logger.Printf("commit sink failed for round %d: %v", result.Sequence, err)
		return err
	}
	return nil
}
