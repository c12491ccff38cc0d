// Package sink implements C6: the commit-sink adapter the agreement
// state machine (C5) delivers committed rounds to. A sink has no
// agreement logic of its own — it receives an already-finalized
// CommitResult, persists it idempotently by round (Sequence), and never
// causes a committed instance to unlatch on failure; failures are logged and
// surfaced to the caller instead.
package sink

import "context"

// CommitResult is what C5 hands to C6 once a round reaches quorum: the
// agreed Merkle root, its position in the total order, and the
// aggregated signature over the commit votes.
type CommitResult struct {
	View                uint64
	Sequence            uint64
	Digest              []byte // the agreed Merkle root bytes
	AggregatedSignature []byte
	ContributorNodeIDs  []int
	NodeID              int // the local node persisting this record
}

// Sink is the single operation C6 exposes.
type Sink interface {
	// OnCommit persists result. The provided sinks are idempotent in
	// result.Sequence: a delivery for a round already recorded (e.g. a
	// replay) is a no-op and not an error. The digest is not consulted,
	// so the same digest committed at a new sequence is stored again.
	OnCommit(ctx context.Context, result *CommitResult) error
}
