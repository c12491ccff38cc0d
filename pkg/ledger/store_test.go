package ledger

import (
	"context"
	"testing"
)

func TestMemoryStore_PutAndGetEvent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	event := &IntegrityEvent{MerkleRoot: "abc", NodeID: 0, ConsensusRound: 1, Status: StatusCommitted}
	if err := s.PutEvent(ctx, event); err != nil {
		t.Fatalf("put event: %v", err)
	}

	got, err := s.EventByRound(ctx, 1)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.MerkleRoot != "abc" {
		t.Fatalf("expected root 'abc', got %q", got.MerkleRoot)
	}
	if got.ID == 0 {
		t.Fatal("expected assigned ID")
	}
}

func TestMemoryStore_DuplicateRoundRejected(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	event := &IntegrityEvent{MerkleRoot: "abc", ConsensusRound: 1}
	if err := s.PutEvent(ctx, event); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := s.PutEvent(ctx, event); err != ErrDuplicateRoot {
		t.Fatalf("expected ErrDuplicateRoot, got %v", err)
	}
}

func TestMemoryStore_EventNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.EventByRound(context.Background(), 99); err != ErrEventNotFound {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestMemoryStore_ListEventsOrderedByRound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, round := range []uint64{3, 1, 2} {
		if err := s.PutEvent(ctx, &IntegrityEvent{ConsensusRound: round}); err != nil {
			t.Fatalf("put round %d: %v", round, err)
		}
	}

	events, err := s.ListEvents(ctx, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []uint64{1, 2, 3} {
		if events[i].ConsensusRound != want {
			t.Fatalf("position %d: expected round %d, got %d", i, want, events[i].ConsensusRound)
		}
	}
}

func TestMemoryStore_PutAuditLog(t *testing.T) {
	s := NewMemoryStore()
	err := s.PutAuditLog(context.Background(), &AuditLog{EventType: "view_change", Severity: SeverityWarning, Message: "primary timed out"})
	if err != nil {
		t.Fatalf("put audit log: %v", err)
	}
}
