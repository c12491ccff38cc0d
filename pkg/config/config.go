// Package config loads node configuration from environment variables,
// following the getEnv/getEnvInt/getEnvBool/getEnvDuration helper
// pattern of the reference validator's config loader.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for a ledger node.
type Config struct {
	// Identity and cluster shape
	NodeID     int
	Port       int
	TotalNodes int
	Peers      []string // base URL (e.g. http://host:7001) of every other node, len == TotalNodes-1 when TotalNodes > 1

	// File-watch boundary (consumed by the out-of-scope agent; carried
	// here only so a single binary can host both roles in development)
	WatchPaths   []string
	ScanInterval time.Duration

	// Attestation (C3)
	UseSimulatedTPM       bool
	AttestationBaselinePath string

	// Persistence (C6)
	DatabaseURL string
	CommitSink  string // "memory" or "postgres"

	// Node supervisor (C7)
	CleanupInterval     time.Duration
	MaxInstancesPerView int

	// Ambient
	MetricsEnabled bool
}

// Load reads configuration from environment variables, applying the
// defaults named in the node configuration reference.
func Load() (*Config, error) {
	cfg := &Config{
		NodeID:     getEnvInt("NODE_ID", 0),
		Port:       getEnvInt("PORT", 7000),
		TotalNodes: getEnvInt("TOTAL_NODES", 1),
		Peers:      parseCSV(getEnv("PEERS", "")),

		WatchPaths:   parseCSV(getEnv("WATCH_PATHS", "")),
		ScanInterval: getEnvDuration("SCAN_INTERVAL", 30*time.Second),

		UseSimulatedTPM:         getEnvBool("USE_SIMULATED_TPM", true),
		AttestationBaselinePath: getEnv("ATTESTATION_BASELINE_PATH", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		CommitSink:  getEnv("COMMIT_SINK", "memory"),

		CleanupInterval:     getEnvDuration("CLEANUP_INTERVAL", 60*time.Second),
		MaxInstancesPerView: getEnvInt("MAX_INSTANCES_PER_VIEW", 1000),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
	}

	return cfg, nil
}

// Validate enforces the invariants a node must satisfy before it can
// start participating in agreement.
func (c *Config) Validate() error {
	var errs []string

	if c.TotalNodes < 1 {
		errs = append(errs, "TOTAL_NODES must be >= 1")
	}
	if c.NodeID < 0 || (c.TotalNodes > 0 && c.NodeID >= c.TotalNodes) {
		errs = append(errs, fmt.Sprintf("NODE_ID must be in [0, %d)", c.TotalNodes))
	}
	if c.TotalNodes > 1 && len(c.Peers) != c.TotalNodes-1 {
		errs = append(errs, fmt.Sprintf("PEERS must list exactly %d addresses when TOTAL_NODES=%d, got %d", c.TotalNodes-1, c.TotalNodes, len(c.Peers)))
	}
	if c.CommitSink != "memory" && c.CommitSink != "postgres" {
		errs = append(errs, "COMMIT_SINK must be 'memory' or 'postgres'")
	}
	if c.CommitSink == "postgres" && c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required when COMMIT_SINK=postgres")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseCSV splits a comma-separated list, trimming whitespace and
// dropping empty entries.
func parseCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
