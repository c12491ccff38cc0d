package sink

import (
	"context"
	"encoding/hex"
	"errors"
	"log"

	"github.com/sfim/ledger/pkg/ledger"
)

// PostgresSink persists commits through a ledger.Store backed by
// Postgres (pkg/database.Store), for deployments that want a durable
// tamper-evident log rather than an in-process one.
type PostgresSink struct {
	store  ledger.Store
	logger *log.Logger
}

func NewPostgresSink(store ledger.Store, logger *log.Logger) *PostgresSink {
	if logger == nil {
		logger = log.New(log.Writer(), "[Sink] ", log.LstdFlags)
	}
	return &PostgresSink{store: store, logger: logger}
}

func (s *PostgresSink) OnCommit(ctx context.Context, result *CommitResult) error {
	event := &ledger.IntegrityEvent{
		MerkleRoot:          hex.EncodeToString(result.Digest),
		AggregatedSignature: hex.EncodeToString(result.AggregatedSignature),
		NodeID:              result.NodeID,
		ConsensusRound:      result.Sequence,
		Status:              ledger.StatusCommitted,
	}

	err := s.store.PutEvent(ctx, event)
	if errors.Is(err, ledger.ErrDuplicateRoot) {
		return nil
	}
	if err != nil {
		s.logger.Printf("commit sink failed for round %d: %v", result.Sequence, err)
		return err
	}
	return nil
}
