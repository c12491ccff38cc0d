// Package ledger holds the persistence-facing types committed roots are
// translated into, and a Store abstraction over them.
//
// Grounded on the source's SQLAlchemy models (models.py): IntegrityEvent,
// FileStorage, and AuditLog, trimmed of fields the source itself never
// populates (NodeModel, the tmp_quotes table — both unused accounting
// artifacts) and translated into plain Go structs and a database/sql
// store instead of an ORM session.
package ledger

import "time"

const (
	StatusPending   = "pending"
	StatusCommitted = "committed"

	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// IntegrityEvent is the committed record of one agreed-upon Merkle root.
type IntegrityEvent struct {
	ID                  int64
	MerkleRoot          string
	FilePath            string
	FileHash            string
	AggregatedSignature string
	NodeID              int
	ConsensusRound      uint64 // the agreement sequence number
	Status              string
	Timestamp           time.Time
	CreatedAt           time.Time
}

// FileStorage optionally binds a committed root to the file bytes it was
// computed over, for deployments that choose to retain them.
type FileStorage struct {
	ID             int64
	FileName       string
	FileHash       string
	FileSize       int64
	MimeType       string
	FileData       []byte
	MerkleRoot     string
	NodeID         int
	ConsensusRound uint64
	Status         string
	CreatedAt      time.Time
}

// AuditLog is a free-form operational event record — attestation
// transitions, view changes, sink failures — independent of the
// committed-root log itself.
type AuditLog struct {
	ID        int64
	EventType string
	NodeID    *int
	Message   string
	Details   string
	Severity  string
	Timestamp time.Time
}
