package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sfim/ledger/pkg/ledger"
)

// Store implements ledger.Store atop a Postgres-backed Client.
type Store struct {
	client *Client
}

// NewStore wraps a Client as a ledger.Store.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

var _ ledger.Store = (*Store)(nil)

func (s *Store) PutEvent(ctx context.Context, event *ledger.IntegrityEvent) error {
	const q = `
		INSERT INTO integrity_events
			(merkle_root, file_path, file_hash, aggregated_signature, node_id, consensus_round, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (consensus_round) DO NOTHING
		RETURNING id`

	var id int64
	err := s.client.QueryRowContext(ctx, q,
		event.MerkleRoot, event.FilePath, event.FileHash, event.AggregatedSignature,
		event.NodeID, event.ConsensusRound, event.Status,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrDuplicateRoot
	}
	if err != nil {
		return fmt.Errorf("insert integrity event: %w", err)
	}
	event.ID = id
	return nil
}

func (s *Store) EventByRound(ctx context.Context, round uint64) (*ledger.IntegrityEvent, error) {
	const q = `
		SELECT id, merkle_root, file_path, file_hash, aggregated_signature,
		       node_id, consensus_round, status, timestamp, created_at
		FROM integrity_events WHERE consensus_round = $1`

	event := &ledger.IntegrityEvent{}
	err := s.client.QueryRowContext(ctx, q, round).Scan(
		&event.ID, &event.MerkleRoot, &event.FilePath, &event.FileHash, &event.AggregatedSignature,
		&event.NodeID, &event.ConsensusRound, &event.Status, &event.Timestamp, &event.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query integrity event: %w", err)
	}
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context, limit int) ([]*ledger.IntegrityEvent, error) {
	q := `
		SELECT id, merkle_root, file_path, file_hash, aggregated_signature,
		       node_id, consensus_round, status, timestamp, created_at
		FROM integrity_events ORDER BY consensus_round DESC`
	args := []interface{}{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.client.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list integrity events: %w", err)
	}
	defer rows.Close()

	var events []*ledger.IntegrityEvent
	for rows.Next() {
		event := &ledger.IntegrityEvent{}
		if err := rows.Scan(
			&event.ID, &event.MerkleRoot, &event.FilePath, &event.FileHash, &event.AggregatedSignature,
			&event.NodeID, &event.ConsensusRound, &event.Status, &event.Timestamp, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan integrity event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) PutAuditLog(ctx context.Context, entry *ledger.AuditLog) error {
	const q = `
		INSERT INTO audit_logs (event_type, node_id, message, details, severity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	if err := s.client.QueryRowContext(ctx, q,
		entry.EventType, entry.NodeID, entry.Message, entry.Details, entry.Severity,
	).Scan(&id); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	entry.ID = id
	return nil
}
