package config

import "testing"

func TestValidate_SingleNodeDefaults(t *testing.T) {
	cfg := &Config{NodeID: 0, TotalNodes: 1, CommitSink: "memory"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid single-node config, got %v", err)
	}
}

func TestValidate_NodeIDOutOfRange(t *testing.T) {
	cfg := &Config{NodeID: 4, TotalNodes: 4, CommitSink: "memory"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for NODE_ID == TOTAL_NODES")
	}
}

func TestValidate_PeerCountMismatch(t *testing.T) {
	cfg := &Config{NodeID: 0, TotalNodes: 4, Peers: []string{"a:1", "b:2"}, CommitSink: "memory"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when len(Peers) != TotalNodes-1")
	}
}

func TestValidate_PostgresRequiresDatabaseURL(t *testing.T) {
	cfg := &Config{NodeID: 0, TotalNodes: 1, CommitSink: "postgres"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for postgres sink without DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://localhost/ledger"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config once DATABASE_URL is set, got %v", err)
	}
}

func TestValidate_UnknownSink(t *testing.T) {
	cfg := &Config{NodeID: 0, TotalNodes: 1, CommitSink: "redis"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized COMMIT_SINK")
	}
}

func TestLoadBaselineRegistry_EmptyPath(t *testing.T) {
	registry, err := LoadBaselineRegistry("")
	if err != nil {
		t.Fatalf("expected no error for empty path, got %v", err)
	}
	if len(registry) != 0 {
		t.Fatal("expected empty registry for empty path")
	}
}
