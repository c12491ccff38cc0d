package agreement

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/sfim/ledger/pkg/signer"
	"github.com/sfim/ledger/pkg/sink"
)

var (
	ErrNotPrimary    = errors.New("only the primary may propose")
	ErrUnknownSender = errors.New("message from a node outside the known peer set")
	ErrBadSignature  = errors.New("signature verification failed")
	ErrWrongView     = errors.New("message view does not match replica's current view")
)

// Broadcaster fans a PhaseMessage out to every peer. Satisfied
// structurally by pkg/transport's Transport so this package never
// imports it.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg *PhaseMessage) error
}

// TrustGate reports whether the local node currently presents a trusted
// or suspicious attestation quote. When it reports false, PREPARE and
// COMMIT emission is suspended regardless of inbound messages.
type TrustGate func() bool

// StateMachine runs the three-phase agreement protocol for one node. Per
// §5, all mutations of AgreementInstance state are serialized on a single
// mutex — handlers for the same (view, sequence, digest) never run
// concurrently.
type StateMachine struct {
	mu sync.Mutex

	nodeID     int
	totalNodes int
	view       ViewNumber
	sequence   SequenceNumber

	peerPublicKeys map[int][]byte // includes the local node's own key
	signer         signer.Signer
	broadcaster    Broadcaster
	sink           sink.Sink
	trustGate      TrustGate
	onPrepare      func()
	logger         *log.Logger

	instances             map[string]*AgreementInstance // key: view:digest
	lastCommittedSequence map[string]SequenceNumber     // key: hex digest

	commitGracePeriod time.Duration
}

// Config wires a StateMachine's dependencies.
type Config struct {
	NodeID         int
	TotalNodes     int
	PeerPublicKeys map[int][]byte
	Signer         signer.Signer
	Broadcaster    Broadcaster
	Sink           sink.Sink
	TrustGate      TrustGate // nil means always trusted
	Logger         *log.Logger

	// OnPrepareEmitted, if set, is called each time this replica emits its
	// own PREPARE vote — a hook for C7's metrics surface.
	OnPrepareEmitted func()

	// CommitGracePeriod bounds how long a replica waits, once COMMIT
	// quorum is first reached, for the remaining honest replicas' votes
	// to land before finalizing with just the quorum it has. Zero means
	// the default (20ms).
	CommitGracePeriod time.Duration
}

const defaultCommitGracePeriod = 20 * time.Millisecond

func NewStateMachine(cfg Config) *StateMachine {
	if cfg.TotalNodes > 1 && cfg.Signer != nil && !cfg.Signer.SupportsMultiNode() {
		panic(fmt.Sprintf("agreement: %s signer is single-node only, refused with TotalNodes=%d", cfg.Signer.Scheme(), cfg.TotalNodes))
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Agreement] ", log.LstdFlags)
	}
	if cfg.TrustGate == nil {
		cfg.TrustGate = func() bool { return true }
	}
	if cfg.CommitGracePeriod <= 0 {
		cfg.CommitGracePeriod = defaultCommitGracePeriod
	}
	return &StateMachine{
		nodeID:                cfg.NodeID,
		totalNodes:            cfg.TotalNodes,
		peerPublicKeys:        cfg.PeerPublicKeys,
		signer:                cfg.Signer,
		broadcaster:           cfg.Broadcaster,
		sink:                  cfg.Sink,
		trustGate:             cfg.TrustGate,
		onPrepare:             cfg.OnPrepareEmitted,
		logger:                cfg.Logger,
		instances:             make(map[string]*AgreementInstance),
		lastCommittedSequence: make(map[string]SequenceNumber),
		commitGracePeriod:     cfg.CommitGracePeriod,
	}
}

func instanceKey(view ViewNumber, digest []byte) string {
	return fmt.Sprintf("%d:%s", view, hex.EncodeToString(digest))
}

func (sm *StateMachine) isPrimary() bool {
	return Primary(sm.view, sm.totalNodes) == sm.nodeID
}

func (sm *StateMachine) singleNode() bool {
	return sm.totalNodes <= 1
}

// Propose starts a new instance as the primary. Non-primary calls are
// refused. In single-node configuration, commits immediately without
// constructing any phase messages.
func (sm *StateMachine) Propose(ctx context.Context, digest []byte) error {
	sm.mu.Lock()

	if !sm.singleNode() && !sm.isPrimary() {
		sm.mu.Unlock()
		return ErrNotPrimary
	}

	sm.sequence++
	seq := sm.sequence
	view := sm.view

	if sm.singleNode() {
		inst := sm.getOrCreateInstance(view, seq, digest)
		if inst.Committed {
			sm.mu.Unlock()
			return nil
		}
		inst.Committed = true
		sm.lastCommittedSequence[hex.EncodeToString(digest)] = seq
		sm.mu.Unlock()

		sig, err := sm.signer.Sign(signer.PhaseSigningInput(signer.PhaseCommit, digest, uint64(view)))
		if err != nil {
			return fmt.Errorf("sign single-node commit: %w", err)
		}
		return sm.deliver(ctx, view, seq, digest, sig, []int{sm.nodeID})
	}
	sm.mu.Unlock()

	msg, err := sm.buildMessage(PrePrepare, view, seq, digest)
	if err != nil {
		return err
	}
	if err := sm.applyLocally(ctx, msg); err != nil {
		return err
	}
	if err := sm.broadcaster.Broadcast(ctx, msg); err != nil {
		sm.logger.Printf("broadcast pre_prepare failed: %v", err)
	}
	return nil
}

// HandleMessage dispatches an inbound PhaseMessage to the matching
// handler after verifying the sender is known and the view matches.
func (sm *StateMachine) HandleMessage(ctx context.Context, msg *PhaseMessage) error {
	if _, known := sm.peerPublicKeys[msg.SenderID]; !known {
		return ErrUnknownSender
	}

	sm.mu.Lock()
	currentView := sm.view
	sm.mu.Unlock()
	if msg.View != currentView {
		return ErrWrongView
	}

	if err := sm.verify(msg); err != nil {
		return err
	}

	return sm.applyLocally(ctx, msg)
}

func (sm *StateMachine) applyLocally(ctx context.Context, msg *PhaseMessage) error {
	switch msg.Phase {
	case PrePrepare:
		return sm.handlePrePrepare(ctx, msg)
	case Prepare:
		return sm.handlePrepare(ctx, msg)
	case Commit:
		return sm.handleCommit(ctx, msg)
	default:
		return fmt.Errorf("unknown phase %q", msg.Phase)
	}
}

func (sm *StateMachine) handlePrePrepare(ctx context.Context, msg *PhaseMessage) error {
	sm.mu.Lock()
	expectedPrimary := Primary(msg.View, sm.totalNodes)
	if msg.SenderID != expectedPrimary {
		sm.mu.Unlock()
		return nil // not from the primary for this view, silently ignored
	}

	if last, ok := sm.lastCommittedSequence[hex.EncodeToString(msg.Digest)]; ok && msg.Sequence <= last {
		sm.mu.Unlock()
		return nil
	}

	sm.getOrCreateInstance(msg.View, msg.Sequence, msg.Digest)
	trusted := sm.trustGate()
	sm.mu.Unlock()

	if !trusted {
		sm.logger.Printf("suspended: not emitting prepare for digest %x while untrusted", msg.Digest)
		return nil
	}

	prepareMsg, err := sm.buildMessage(Prepare, msg.View, msg.Sequence, msg.Digest)
	if err != nil {
		return err
	}
	if err := sm.applyLocally(ctx, prepareMsg); err != nil {
		return err
	}
	if sm.onPrepare != nil {
		sm.onPrepare()
	}
	if err := sm.broadcaster.Broadcast(ctx, prepareMsg); err != nil {
		sm.logger.Printf("broadcast prepare failed: %v", err)
	}
	return nil
}

func (sm *StateMachine) handlePrepare(ctx context.Context, msg *PhaseMessage) error {
	sm.mu.Lock()
	inst := sm.getOrCreateInstance(msg.View, msg.Sequence, msg.Digest)
	card := inst.addPrepare(msg)

	if card < Quorum(sm.totalNodes) || inst.Prepared {
		sm.mu.Unlock()
		return nil
	}
	inst.Prepared = true
	trusted := sm.trustGate()
	sm.mu.Unlock()

	if !trusted {
		sm.logger.Printf("suspended: not emitting commit for digest %x while untrusted", msg.Digest)
		return nil
	}

	commitMsg, err := sm.buildMessage(Commit, msg.View, msg.Sequence, msg.Digest)
	if err != nil {
		return err
	}
	if err := sm.applyLocally(ctx, commitMsg); err != nil {
		return err
	}
	if err := sm.broadcaster.Broadcast(ctx, commitMsg); err != nil {
		sm.logger.Printf("broadcast commit failed: %v", err)
	}
	return nil
}

// handleCommit records an inbound COMMIT vote. Once quorum is first
// reached, a replica that has already heard from every configured node
// finalizes immediately; otherwise it starts a bounded grace timer so
// that stragglers arriving moments later (an artifact of fan-out order,
// not Byzantine absence) still land in the aggregate. A replica that
// genuinely never hears from the missing senders finalizes with just the
// quorum once the timer fires.
func (sm *StateMachine) handleCommit(ctx context.Context, msg *PhaseMessage) error {
	sm.mu.Lock()
	inst := sm.getOrCreateInstance(msg.View, msg.Sequence, msg.Digest)
	card := inst.addCommit(msg)

	if inst.Committed || card < Quorum(sm.totalNodes) {
		sm.mu.Unlock()
		return nil
	}

	if card >= sm.totalNodes {
		sm.mu.Unlock()
		return sm.finalizeCommit(ctx, msg.View, msg.Sequence, msg.Digest)
	}

	if inst.commitFinalizeScheduled {
		sm.mu.Unlock()
		return nil
	}
	inst.commitFinalizeScheduled = true
	grace := sm.commitGracePeriod
	view, sequence, digest := msg.View, msg.Sequence, msg.Digest
	sm.mu.Unlock()

	time.AfterFunc(grace, func() {
		if err := sm.finalizeCommit(context.Background(), view, sequence, digest); err != nil {
			sm.logger.Printf("grace-period commit finalize failed for digest %x: %v", digest, err)
		}
	})
	return nil
}

// finalizeCommit latches the instance committed, aggregates whatever
// COMMIT votes it holds at that instant, and delivers to C6. Safe to
// call more than once for the same instance: only the first call (under
// the lock) does anything.
func (sm *StateMachine) finalizeCommit(ctx context.Context, view ViewNumber, sequence SequenceNumber, digest []byte) error {
	sm.mu.Lock()
	inst := sm.getOrCreateInstance(view, sequence, digest)
	if inst.Committed {
		sm.mu.Unlock()
		return nil
	}
	inst.Committed = true
	sm.lastCommittedSequence[hex.EncodeToString(digest)] = sequence
	votes := inst.commitVotes()
	sm.mu.Unlock()

	sigs := make([][]byte, len(votes))
	contributors := make([]int, len(votes))
	for i, v := range votes {
		sigs[i] = v.Signature
		contributors[i] = v.SenderID
	}

	aggSig, err := sm.signer.Aggregate(sigs)
	if err != nil {
		return fmt.Errorf("aggregate commit signatures: %w", err)
	}

	return sm.deliver(ctx, view, sequence, digest, aggSig, contributors)
}

func (sm *StateMachine) deliver(ctx context.Context, view ViewNumber, sequence SequenceNumber, digest, aggSig []byte, contributors []int) error {
	result := &sink.CommitResult{
		View:                uint64(view),
		Sequence:            uint64(sequence),
		Digest:              digest,
		AggregatedSignature: aggSig,
		ContributorNodeIDs:  contributors,
		NodeID:              sm.nodeID,
	}
	if err := sm.sink.OnCommit(ctx, result); err != nil {
		sm.logger.Printf("commit sink failed for digest %x: %v", digest, err)
		return err
	}
	sm.logger.Printf("consensus reached for digest %x (view=%d seq=%d)", digest, view, sequence)
	return nil
}

func (sm *StateMachine) getOrCreateInstance(view ViewNumber, sequence SequenceNumber, digest []byte) *AgreementInstance {
	key := instanceKey(view, digest)
	inst, ok := sm.instances[key]
	if !ok {
		inst = newInstance(view, sequence, digest)
		sm.instances[key] = inst
	}
	return inst
}

func (sm *StateMachine) buildMessage(phase Phase, view ViewNumber, sequence SequenceNumber, digest []byte) (*PhaseMessage, error) {
	sig, err := sm.signer.Sign(signer.PhaseSigningInput(string(phase), digest, uint64(view)))
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", phase, err)
	}
	return &PhaseMessage{
		Phase:       phase,
		View:        view,
		Sequence:    sequence,
		Digest:      digest,
		SenderID:    sm.nodeID,
		Signature:   sig,
		TimestampMs: time.Now().UnixMilli(),
		PublicKey:   sm.peerPublicKeys[sm.nodeID],
	}, nil
}

func (sm *StateMachine) verify(msg *PhaseMessage) error {
	pub := sm.peerPublicKeys[msg.SenderID]
	input := signer.PhaseSigningInput(string(msg.Phase), msg.Digest, uint64(msg.View))
	ok, err := sm.signer.Verify(pub, input, msg.Signature)
	if err != nil {
		return fmt.Errorf("verify %s from node %d: %w", msg.Phase, msg.SenderID, err)
	}
	if !ok {
		return ErrBadSignature
	}
	return nil
}

// CurrentView reports the replica's current view number.
func (sm *StateMachine) CurrentView() ViewNumber {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.view
}

// InstanceCount reports the number of in-memory AgreementInstance
// entries currently tracked in the given view, for the cleanup loop.
func (sm *StateMachine) InstanceCount(view ViewNumber) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	count := 0
	prefix := fmt.Sprintf("%d:", view)
	for key := range sm.instances {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			count++
		}
	}
	return count
}

// PruneView evicts AgreementInstance entries for view beyond the keep
// most recent by sequence number, bounding the in-memory instance count
// per C7's cleanup loop responsibility. Entries from other views are
// untouched.
func (sm *StateMachine) PruneView(view ViewNumber, keep int) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	prefix := fmt.Sprintf("%d:", view)
	var keys []string
	for key := range sm.instances {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	if len(keys) <= keep {
		return 0
	}

	sort.Slice(keys, func(i, j int) bool {
		return sm.instances[keys[i]].Sequence > sm.instances[keys[j]].Sequence
	})

	evicted := 0
	for _, key := range keys[keep:] {
		delete(sm.instances, key)
		evicted++
	}
	return evicted
}
