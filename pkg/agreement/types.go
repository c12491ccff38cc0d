// Package agreement implements C5: the three-phase (pre-prepare,
// prepare, commit) Byzantine agreement state machine with view-indexed
// primary rotation.
//
// Grounded on the source's PBFTNode (consensus.py): phase enum, message
// shape, prepare/commit tallying by sender-keyed set cardinality, single-
// node immediate-commit shortcut, and the primary = view % N rule.
package agreement

import "fmt"

// Phase names a PhaseMessage's role in the three-phase protocol.
type Phase string

const (
	PrePrepare Phase = "pre_prepare"
	Prepare    Phase = "prepare"
	Commit     Phase = "commit"
)

// ViewNumber determines the primary: primary(v) = v mod N.
type ViewNumber uint64

// SequenceNumber is monotone non-negative per node, bumped on each
// proposal at the primary.
type SequenceNumber uint64

// Primary returns the node index responsible for proposing in view v
// among totalNodes replicas.
func Primary(v ViewNumber, totalNodes int) int {
	return int(uint64(v) % uint64(totalNodes))
}

// Quorum computes Q = floor(2*(N-1)/3) + 1 for N >= 2, and 1 for N == 1.
func Quorum(totalNodes int) int {
	if totalNodes <= 1 {
		return 1
	}
	return (2*(totalNodes-1))/3 + 1
}

// PhaseMessage is the wire/in-memory representation of one vote. It is
// immutable once constructed.
type PhaseMessage struct {
	Phase       Phase
	View        ViewNumber
	Sequence    SequenceNumber
	Digest      []byte
	SenderID    int
	Signature   []byte
	TimestampMs int64
	PublicKey   []byte
}

func (m *PhaseMessage) String() string {
	return fmt.Sprintf("%s(view=%d seq=%d sender=%d digest=%x)", m.Phase, m.View, m.Sequence, m.SenderID, m.Digest[:min(8, len(m.Digest))])
}
