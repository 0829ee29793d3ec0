// Package config loads process-wide settings exactly once, the way
// spec.md §6/§9 requires: the parallel-execution toggle and the
// network-specific thresholds are read once at startup and cached so a
// later environment change can never make a block's re-verification
// disagree with its original verification.
package config

import (
	"sync"

	"github.com/ordishs/gocore"
)

// Network selects the chain-id-derived parameter set (spec §6).
type Network int

const (
	NetworkMainnet Network = iota + 1
	NetworkTestnet
	NetworkDevnet
)

func (n Network) ChainID() byte { return byte(n) }

// Settings is the immutable, process-lifetime configuration snapshot.
type Settings struct {
	Network Network

	// ParallelExecution enables C7's conflict-group parallel scheduler.
	ParallelExecution bool
	// ParallelTestMode lowers the parallel threshold for deterministic
	// test fixtures without touching production thresholds.
	ParallelTestMode bool

	// StableLimit is the GHOSTDAG k-cluster stabilisation window (spec §4.5).
	StableLimit uint64
	// PruneSafetyLimit is the minimum rewindable buffer above
	// PrunedTopoheight (spec §4.9); always 10x StableLimit unless
	// overridden for tests.
	PruneSafetyLimit uint64

	// KClusterSize is GHOSTDAG's k parameter (spec §4.5, Open Question 3).
	KClusterSize uint32

	// MaxBlockSize caps decoded block size in bytes (spec §4.8, ~1.25 MiB).
	MaxBlockSize uint64
	// MaxTransactionsPerBlock caps tx count per block (spec §4.8).
	MaxTransactionsPerBlock int
	// MaxParents caps header.parents_by_level length (spec §3).
	MaxParents int

	// TimestampDriftToleranceMillis bounds how far a header timestamp
	// may sit ahead of local clock (spec §4.8, Open Question 3).
	TimestampDriftToleranceMillis int64
}

// MinTxsForParallel returns the network-specific parallel-batching
// threshold from spec §6.
func (s *Settings) MinTxsForParallel() int {
	switch s.Network {
	case NetworkMainnet:
		return 20
	case NetworkTestnet:
		return 10
	default:
		return 4
	}
}

func defaultSettings() *Settings {
	return &Settings{
		Network:                       NetworkMainnet,
		ParallelExecution:             false,
		ParallelTestMode:              false,
		StableLimit:                   24,
		PruneSafetyLimit:              240,
		KClusterSize:                  18,
		MaxBlockSize:                  1_250_000,
		MaxTransactionsPerBlock:       10_000,
		MaxParents:                    32,
		TimestampDriftToleranceMillis: 2 * 60 * 60 * 1000,
	}
}

var (
	once     sync.Once
	cached   *Settings
	cacheMu  sync.RWMutex
	cacheSet bool
)

// Load reads configuration from gocore.Config() exactly once per process
// and caches the result; subsequent calls (and subsequent changes to the
// environment) return the cached value. This is the "one-shot config
// cached from the environment" referenced throughout spec.md §4.7/§6/§9.
func Load() *Settings {
	once.Do(func() {
		s := defaultSettings()

		c := gocore.Config()

		if v, ok := c.Get("chain_id"); ok {
			switch v {
			case "1":
				s.Network = NetworkMainnet
			case "2":
				s.Network = NetworkTestnet
			case "3":
				s.Network = NetworkDevnet
			}
		}

		s.ParallelExecution = c.GetBool("parallel_execution", s.ParallelExecution)
		s.ParallelTestMode = c.GetBool("parallel_test_mode", s.ParallelTestMode)
		s.StableLimit = uint64(c.GetInt("stable_limit", int(s.StableLimit)))
		s.PruneSafetyLimit = s.StableLimit * 10
		s.KClusterSize = uint32(c.GetInt("k_cluster_size", int(s.KClusterSize)))

		cacheMu.Lock()
		cached = s
		cacheSet = true
		cacheMu.Unlock()
	})

	cacheMu.RLock()
	defer cacheMu.RUnlock()
	return cached
}

// ForTest installs an explicit Settings value, bypassing gocore, for
// deterministic unit tests that need to flip ParallelExecution or shrink
// PruneSafetyLimit without touching process environment state.
func ForTest(s *Settings) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cached = s
	cacheSet = true
}

// Reset clears the cached settings; test-only, never called from
// production code paths (the one-shot cache is intentionally sticky
// otherwise, per spec §9).
func Reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cached = nil
	cacheSet = false
	once = sync.Once{}
}
