// Package config holds the simulator's CLI parameter surface: the flat
// struct every flag in spec.md §6 populates, its defaults, and its
// validation (the miner/pool-count rule the spec calls out, plus basic
// range checks).
package config

import "fmt"

// Config mirrors every CLI parameter spec.md §6 lists, with defaults
// matching a small, fast smoke-test run rather than any specific paper's
// experiment.
type Config struct {
	Seed                int64
	NMinutes            int
	NPeers              int
	NBootstrap          int
	NMiners             int
	NumPools            int
	NBlocks             int // 0 = unbounded
	BlockSizeFactor     float64
	BlockIntervalFactor float64
	ByzantineFactor     float64 // fraction of peers that accept but never rebroadcast

	Net  string // "vanilla" | "kadcast" | "mincast"
	Topo string // "star" | "geo"

	Unsolicited bool // vanilla: push full blocks instead of INV/HEADERS

	KadK             int
	KadAlpha         int
	KadBeta          int
	KadFecOverhead   float64
	MincastUseScores bool

	StarLeafDataRate float64
	StarHubDataRate  float64

	MetricsAddr string // empty = no metrics HTTP server
	ResultsDir  string
}

// Default returns a small single-pool vanilla/star configuration that
// runs in a few seconds of wall-clock time.
func Default() Config {
	return Config{
		Seed:                1,
		NMinutes:            10,
		NPeers:              50,
		NBootstrap:          8,
		NMiners:             1,
		NumPools:            1,
		NBlocks:             0,
		BlockSizeFactor:     1.0,
		BlockIntervalFactor: 1.0,
		ByzantineFactor:     0,
		Net:                 "vanilla",
		Topo:                "star",
		Unsolicited:         false,
		KadK:                20,
		KadAlpha:            3,
		KadBeta:             2,
		KadFecOverhead:      0.5,
		MincastUseScores:    false,
		StarLeafDataRate:    1_000_000,
		StarHubDataRate:     10_000_000,
		ResultsDir:          ".",
	}
}

// Validate checks the configuration error spec.md §6 names — a miner
// count that isn't evenly divisible across pools (and isn't the
// single-miner special case) — plus basic sanity checks on net, topo,
// n_peers, n_bootstrap and the n_miners range.
func (c Config) Validate() error {
	if c.NMiners != 1 && c.NumPools > 0 && c.NMiners%c.NumPools != 0 {
		return fmt.Errorf("n_miners (%d) must equal 1 or be evenly divisible by num_pools (%d)", c.NMiners, c.NumPools)
	}
	if c.Net != "vanilla" && c.Net != "kadcast" && c.Net != "mincast" {
		return fmt.Errorf("net must be one of vanilla, kadcast, mincast, got %q", c.Net)
	}
	if c.Topo != "star" && c.Topo != "geo" {
		return fmt.Errorf("topo must be one of star, geo, got %q", c.Topo)
	}
	if c.NPeers < 2 {
		return fmt.Errorf("n_peers must be at least 2, got %d", c.NPeers)
	}
	if c.NBootstrap < 1 {
		return fmt.Errorf("n_bootstrap must be at least 1, got %d", c.NBootstrap)
	}
	if c.NMiners < 1 || c.NMiners > c.NPeers {
		return fmt.Errorf("n_miners must be between 1 and n_peers (%d), got %d", c.NPeers, c.NMiners)
	}
	return nil
}
