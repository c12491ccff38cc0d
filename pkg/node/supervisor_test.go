package node

import (
	"context"
	"testing"
	"time"

	"github.com/sfim/ledger/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		NodeID:              0,
		Port:                0,
		TotalNodes:          1,
		CommitSink:          "memory",
		CleanupInterval:     time.Hour,
		MaxInstancesPerView: 1000,
		UseSimulatedTPM:     true,
	}
}

func TestNew_SingleNodeWiresMACSigner(t *testing.T) {
	sup, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sup.signer.Scheme() != "mac" {
		t.Fatalf("expected mac signer for single-node config, got %s", sup.signer.Scheme())
	}
}

func TestNew_MultiNodeRequiresBLSSigner(t *testing.T) {
	cfg := testConfig()
	cfg.TotalNodes = 3
	cfg.NodeID = 1
	cfg.Peers = []string{"http://node0:7000", "http://node2:7002"}

	sup, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sup.signer.Scheme() != "bls12-381" {
		t.Fatalf("expected bls signer for multi-node config, got %s", sup.signer.Scheme())
	}
}

func TestPeerURLsByID_SkipsSelfInAscendingOrder(t *testing.T) {
	cfg := testConfig()
	cfg.TotalNodes = 4
	cfg.NodeID = 2
	cfg.Peers = []string{"http://n0:7000", "http://n1:7001", "http://n3:7003"}

	peers := peerURLsByID(cfg)
	want := map[int]string{0: "http://n0:7000", 1: "http://n1:7001", 3: "http://n3:7003"}
	if len(peers) != len(want) {
		t.Fatalf("expected %d peers, got %d", len(want), len(peers))
	}
	for id, url := range want {
		if peers[id] != url {
			t.Fatalf("peer %d: expected %q, got %q", id, url, peers[id])
		}
	}
}

func TestRunAttestation_TrustedBySimulatedDefault(t *testing.T) {
	sup, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sup.runAttestation(); err != nil {
		t.Fatalf("runAttestation: %v", err)
	}
	if !sup.TrustLevelTrusted() {
		t.Fatal("expected node to be trusted under the default simulated baseline")
	}
}

func TestSupervisor_SingleNodeProposeCommits(t *testing.T) {
	sup, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Propose(ctx, []byte("root-1")); err != nil {
		t.Fatalf("propose: %v", err)
	}
}
