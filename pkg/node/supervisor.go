// Package node implements C7: the node supervisor that wires
// configuration, attestation, signing, agreement, transport, and the
// commit sink into one running replica, and drives the periodic
// attestation and cleanup loops.
//
// Grounded on the source's node.py startup sequence (connect_to_peers,
// periodic_attestation every 60s, hourly cleanup_old_data) and the
// teacher's pkg/consensus/health_monitor.go for the Go-idiomatic shape
// of a ticker-driven background loop (ctx/cancel, ticker, Start/Stop).
package node

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sfim/ledger/pkg/agreement"
	"github.com/sfim/ledger/pkg/attestation"
	"github.com/sfim/ledger/pkg/config"
	"github.com/sfim/ledger/pkg/database"
	"github.com/sfim/ledger/pkg/ledger"
	"github.com/sfim/ledger/pkg/signer"
	"github.com/sfim/ledger/pkg/sink"
	"github.com/sfim/ledger/pkg/transport"
)

const attestationInterval = 60 * time.Second

// maxQuoteHistory bounds the in-memory ring of this node's own recent
// attestation quotes, mirroring the source's "last 100 TPM quotes per
// node" retention without reinstating the dropped TPMQuote table.
const maxQuoteHistory = 100

// Supervisor owns the lifecycle of one replica: it loads configuration,
// dials peers, hosts the inbound peer listener, performs attestation at
// startup and periodically, gates agreement participation on trust, and
// runs the cleanup loop.
type Supervisor struct {
	mu sync.RWMutex

	cfg         *config.Config
	logger      *log.Logger
	attestation *attestation.Service
	signer      signer.Signer
	sm          *agreement.StateMachine
	transport   *transport.Transport
	sink        sink.Sink
	dbClient    *database.Client
	metrics     *metrics

	quoteHistory []*attestation.Quote
	trusted      bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a Supervisor from configuration, wiring C2 through C6
// per §4.8: a BLS signer (the MAC signer when TOTAL_NODES is 1) with peer
// public keys from the baseline registry's companion key material, the
// configured commit sink, and the
// agreement state machine with a trust gate backed by C3.
func New(cfg *config.Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.New(log.Writer(), fmt.Sprintf("[Node %d] ", cfg.NodeID), log.LstdFlags)

	baselines := map[string]map[uint8][32]byte{}
	if cfg.AttestationBaselinePath != "" {
		loaded, err := config.LoadBaselineRegistry(cfg.AttestationBaselinePath)
		if err != nil {
			return nil, fmt.Errorf("load attestation baseline registry: %w", err)
		}
		baselines = loaded
	}

	attestSvc := attestation.NewService(&attestation.Config{
		NodeID:       fmt.Sprintf("%d", cfg.NodeID),
		UseSimulated: cfg.UseSimulatedTPM,
		Logger:       log.New(log.Writer(), fmt.Sprintf("[Node %d][Attestation] ", cfg.NodeID), log.LstdFlags),
	})
	for nodeID, pcrs := range baselines {
		converted := make(map[attestation.PCRIndex][32]byte, len(pcrs))
		for idx, val := range pcrs {
			converted[attestation.PCRIndex(idx)] = val
		}
		attestSvc.RegisterBaseline(nodeID, converted)
	}

	var sig signer.Signer
	if cfg.TotalNodes > 1 {
		priv, _, err := signer.GenerateBLSKeyPair()
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		sig = signer.NewBLSSigner(priv)
	} else {
		sig = signer.NewMACSigner(nil)
	}

	commitSink, dbClient, err := buildSink(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:         cfg,
		logger:      logger,
		attestation: attestSvc,
		signer:      sig,
		sink:        commitSink,
		dbClient:    dbClient,
		trusted:     true,
	}

	if cfg.MetricsEnabled {
		s.metrics = newMetrics(prometheus.DefaultRegisterer, cfg.NodeID)
	}

	peerPublicKeys := map[int][]byte{cfg.NodeID: sig.PublicKey()}
	if cfg.AttestationBaselinePath != "" {
		peerKeys, err := config.LoadPeerPublicKeys(cfg.AttestationBaselinePath)
		if err != nil {
			return nil, fmt.Errorf("load peer public keys: %w", err)
		}
		for id, key := range peerKeys {
			peerPublicKeys[id] = key
		}
	}

	// The transport needs the state machine's inbound handler; the state
	// machine needs the transport as its broadcaster. Break the cycle
	// with a forwarding closure over a variable assigned immediately
	// after construction — nothing calls the handler until Start runs.
	var sm *agreement.StateMachine
	s.transport = transport.New(transport.Config{
		NodeID:     cfg.NodeID,
		ListenAddr: fmt.Sprintf(":%d", cfg.Port),
		Peers:      peerURLsByID(cfg),
		Handler: func(ctx context.Context, msg *agreement.PhaseMessage) error {
			return sm.HandleMessage(ctx, msg)
		},
		Logger: log.New(log.Writer(), fmt.Sprintf("[Node %d][Transport] ", cfg.NodeID), log.LstdFlags),
	})
	sm = agreement.NewStateMachine(agreement.Config{
		NodeID:           cfg.NodeID,
		TotalNodes:       cfg.TotalNodes,
		PeerPublicKeys:   peerPublicKeys,
		Signer:           sig,
		Broadcaster:      s.transport,
		Sink:             wrapSink(commitSink, s.metrics),
		TrustGate:        s.TrustLevelTrusted,
		OnPrepareEmitted: s.recordPrepare,
		Logger:           log.New(log.Writer(), fmt.Sprintf("[Node %d][Agreement] ", cfg.NodeID), log.LstdFlags),
	})
	s.sm = sm

	return s, nil
}

// peerURLsByID maps the configured PEERS list (every node other than
// NodeID, in ascending node-id order — the layout Validate() checks
// against len(PEERS) == TotalNodes-1) onto the node ids it corresponds
// to.
func peerURLsByID(cfg *config.Config) map[int]string {
	peers := make(map[int]string, len(cfg.Peers))
	idx := 0
	for id := 0; id < cfg.TotalNodes; id++ {
		if id == cfg.NodeID {
			continue
		}
		if idx < len(cfg.Peers) {
			peers[id] = cfg.Peers[idx]
		}
		idx++
	}
	return peers
}

func buildSink(cfg *config.Config, logger *log.Logger) (sink.Sink, *database.Client, error) {
	switch cfg.CommitSink {
	case "postgres":
		client, err := database.NewClient(cfg, database.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("connect commit sink database: %w", err)
		}
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := client.MigrateUp(migrateCtx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("migrate commit sink database: %w", err)
		}
		return sink.NewPostgresSink(database.NewStore(client), logger), client, nil
	default:
		return sink.NewMemorySink(ledger.NewMemoryStore(), logger), nil, nil
	}
}

// wrapSink counts sink failures for the metrics surface when enabled.
func wrapSink(s sink.Sink, m *metrics) sink.Sink {
	if m == nil {
		return s
	}
	return &countingSink{inner: s, metrics: m}
}

type countingSink struct {
	inner   sink.Sink
	metrics *metrics
}

func (c *countingSink) OnCommit(ctx context.Context, result *sink.CommitResult) error {
	err := c.inner.OnCommit(ctx, result)
	if err != nil {
		c.metrics.sinkFailuresTotal.Inc()
		return err
	}
	c.metrics.commitsTotal.Inc()
	return nil
}

// Start performs the initial attestation, dials peers, starts the
// inbound listener, and launches the periodic attestation and cleanup
// loops. It returns once startup attestation has run; the background
// loops continue until Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.runAttestation(); err != nil {
		s.logger.Printf("initial attestation failed: %v", err)
	}

	if err := s.transport.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start transport: %w", err)
	}

	s.wg.Add(2)
	go s.attestationLoop(runCtx)
	go s.cleanupLoop(runCtx)

	s.logger.Printf("node %d started (total_nodes=%d, commit_sink=%s)", s.cfg.NodeID, s.cfg.TotalNodes, s.cfg.CommitSink)
	return nil
}

// Stop halts the background loops, the transport, and any database
// connection.
func (s *Supervisor) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	_ = s.transport.Close()
	if s.dbClient != nil {
		return s.dbClient.Close()
	}
	return nil
}

// Propose starts agreement for digest as the primary. Callers
// (normally the out-of-scope file-watching agent's integration point)
// invoke this once a new Merkle root has been computed.
func (s *Supervisor) Propose(ctx context.Context, digest []byte) error {
	return s.sm.Propose(ctx, digest)
}

func (s *Supervisor) runAttestation() error {
	level, quote, err := s.attestation.LocalTrustLevel()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.trusted = level != attestation.Untrusted
	s.quoteHistory = append(s.quoteHistory, quote)
	if len(s.quoteHistory) > maxQuoteHistory {
		s.quoteHistory = s.quoteHistory[len(s.quoteHistory)-maxQuoteHistory:]
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.trustLevel.Set(trustLevelValue(level))
	}
	if level == attestation.Untrusted {
		s.logger.Printf("attestation failed: node is untrusted")
	}
	return nil
}

func trustLevelValue(level attestation.TrustLevel) float64 {
	switch level {
	case attestation.Trusted:
		return 2
	case attestation.Suspicious:
		return 1
	default:
		return 0
	}
}

// TrustLevelTrusted reports whether the node's last attestation admits
// it to emit PREPARE/COMMIT votes. Per §4.3, a transition to untrusted
// (not suspicious) is what suspends emission — suspicious nodes keep
// participating, with the degraded trust level surfaced via metrics.
func (s *Supervisor) TrustLevelTrusted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trusted
}

// recordPrepare increments the PREPARE-emitted counter when metrics are
// enabled; a no-op otherwise.
func (s *Supervisor) recordPrepare() {
	if s.metrics != nil {
		s.metrics.preparesTotal.Inc()
	}
}

func (s *Supervisor) attestationLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(attestationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runAttestation(); err != nil {
				s.logger.Printf("periodic attestation error: %v", err)
			}
		}
	}
}
