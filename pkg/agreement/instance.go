package agreement

// AgreementInstance is keyed by digest within a view. It tallies PREPARE
// and COMMIT votes deduplicated by sender and latches prepared/committed
// at most once — neither flag is ever reset within a view.
type AgreementInstance struct {
	View      ViewNumber
	Sequence  SequenceNumber
	Digest    []byte
	prepares  map[int]*PhaseMessage
	commits   map[int]*PhaseMessage
	Prepared  bool
	Committed bool

	// commitFinalizeScheduled guards against starting more than one
	// grace-period finalize timer per instance once COMMIT quorum is
	// first reached but not every replica has voted yet.
	commitFinalizeScheduled bool
}

func newInstance(view ViewNumber, sequence SequenceNumber, digest []byte) *AgreementInstance {
	return &AgreementInstance{
		View:     view,
		Sequence: sequence,
		Digest:   digest,
		prepares: make(map[int]*PhaseMessage),
		commits:  make(map[int]*PhaseMessage),
	}
}

// addPrepare inserts a dedup'd-by-sender PREPARE vote and reports the new
// cardinality.
func (a *AgreementInstance) addPrepare(msg *PhaseMessage) int {
	if _, exists := a.prepares[msg.SenderID]; exists {
		return len(a.prepares)
	}
	a.prepares[msg.SenderID] = msg
	return len(a.prepares)
}

// addCommit inserts a dedup'd-by-sender COMMIT vote and reports the new
// cardinality.
func (a *AgreementInstance) addCommit(msg *PhaseMessage) int {
	if _, exists := a.commits[msg.SenderID]; exists {
		return len(a.commits)
	}
	a.commits[msg.SenderID] = msg
	return len(a.commits)
}

// commitVotes returns the COMMIT votes received so far, for aggregation
// by C2 once the instance latches committed.
func (a *AgreementInstance) commitVotes() []*PhaseMessage {
	votes := make([]*PhaseMessage, 0, len(a.commits))
	for _, msg := range a.commits {
		votes = append(votes, msg)
	}
	return votes
}
