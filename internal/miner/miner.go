// Package miner implements the per-peer stochastic block-production model
// (spec.md §4.4): an exponential inter-arrival time scaled by
// difficulty/hashrate, and an empirical block-size draw, both fed by the
// simulator's seeded RNG service.
package miner

import (
	"math"
	"time"

	"github.com/bnssim/bns/internal/chain"
	"github.com/bnssim/bns/internal/randstream"
	"github.com/bnssim/bns/internal/scheduler"
)

// HistoricalBlockSizesMB is the empirical table of historical block sizes
// (in megabytes) nextBlockSize draws an index from uniformly — the same
// shape of lookup the original ns-3 bitcoin-miner used, scaled down to a
// handful of representative points since only the distribution's spread
// matters for propagation timing, not matching any particular chain's
// history byte-for-byte.
var HistoricalBlockSizesMB = []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 2.0}

// twoPow32 is the 2^32 factor nextBlockInterval uses to turn a hash rate
// in hertz and a static difficulty into an average inter-arrival time in
// seconds, mirroring the original "difficulty * 2**32 / hashRate"
// relation with hashRate expressed in Hz.
const twoPow32 = 4294967296.0

// BlockSink receives a newly mined block before it has been added to the
// local Blockchain — it is expected to timestamp it, call AddBlock, and
// kick off protocol broadcast (spec.md §4.4: "notify_new_block(b,
// mined=true)"). Defined here (rather than importing internal/peer) to
// avoid a import cycle; internal/peer implements it.
type BlockSink interface {
	NotifyNewBlock(b chain.Block, mined bool)
}

// Miner is attached to one mining-enabled peer.
type Miner struct {
	sched      *scheduler.Scheduler
	rng        *randstream.Stream
	blockchain interface{ TopID() uint64 }
	sink       BlockSink

	hashRateHz float64
	difficulty float64

	blockSizeFactor     float64
	blockIntervalFactor float64

	mining  bool
	current *scheduler.Handle
}

// Config bundles the tunable parameters distinct from wiring.
type Config struct {
	HashRateHz          float64
	Difficulty          float64
	BlockSizeFactor     float64
	BlockIntervalFactor float64
}

// New creates a Miner wired to sched/rng/blockchain/sink. It does not
// start mining — call StartMining explicitly.
func New(sched *scheduler.Scheduler, rng *randstream.Stream, blockchain interface{ TopID() uint64 }, sink BlockSink, cfg Config) *Miner {
	return &Miner{
		sched:               sched,
		rng:                 rng,
		blockchain:          blockchain,
		sink:                sink,
		hashRateHz:          cfg.HashRateHz,
		difficulty:          cfg.Difficulty,
		blockSizeFactor:     cfg.BlockSizeFactor,
		blockIntervalFactor: cfg.BlockIntervalFactor,
	}
}

// StartMining (re)schedules the next block discovery. If mining is already
// in progress its pending event is cancelled and a fresh draw replaces it
// — spec.md §4.4's "if already mining, cancel the pending event".
func (m *Miner) StartMining() {
	if m.mining && m.current != nil {
		m.sched.Cancel(*m.current)
	}
	m.mining = true
	prev := m.blockchain.TopID()

	delay := m.nextBlockInterval()
	h := m.sched.Schedule(delay, func() { m.mineBlock(prev) })
	m.current = &h
}

// StopMining cancels any pending discovery event without starting a new
// one.
func (m *Miner) StopMining() {
	m.mining = false
	if m.current != nil {
		m.sched.Cancel(*m.current)
		m.current = nil
	}
}

// IsMining reports whether a discovery event is currently pending.
func (m *Miner) IsMining() bool { return m.mining }

// mineBlock fires when the scheduled discovery event matures. A race with
// StopMining (which flips m.mining but cannot un-schedule a callback that
// already started running) is handled by the guard below.
func (m *Miner) mineBlock(prev uint64) {
	if !m.mining {
		return
	}
	id := m.rng.Uint64()
	size := m.nextBlockSize()
	b := chain.NewBlock(id, prev, size)
	m.mining = false
	m.current = nil
	m.sink.NotifyNewBlock(b, true)
}

// nextBlockInterval draws Δt ~ Exp(mean = difficulty*2^32/hashRate) scaled
// by blockIntervalFactor, via inverse-transform sampling on a uniform in
// [0,1) (spec.md §4.4) — negative durations are impossible by
// construction.
func (m *Miner) nextBlockInterval() time.Duration {
	meanSeconds := (m.difficulty * twoPow32 / m.hashRateHz) * m.blockIntervalFactor
	seconds := m.rng.Exponential(meanSeconds)
	return time.Duration(seconds * float64(time.Second))
}

// nextBlockSize draws a historical block size uniformly by index, scaled
// by blockSizeFactor*blockIntervalFactor (matching the original miner's
// joint scaling of both factors into the byte count).
func (m *Miner) nextBlockSize() uint32 {
	idx := m.rng.UniformInt(0, uint64(len(HistoricalBlockSizesMB)))
	mb := HistoricalBlockSizesMB[idx]
	bytes := mb * 1024 * 1024 * m.blockSizeFactor * m.blockIntervalFactor
	return uint32(math.Max(1, bytes))
}
