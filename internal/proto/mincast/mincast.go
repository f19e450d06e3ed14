// Package mincast implements the Mincast propagation variant (spec.md
// §4.7): identical to Kadcast's bucket-tree broadcast, except the last
// recipient selected in each bucket receives an INFORM hint instead of
// the block's chunks, and answers that hint with a REQUEST pull (the
// informer replies with the block's chunks) rather than a push. It is built by composing kadcast.Engine through its
// Deliver/ExtraDispatch extension points rather than duplicating the
// routing table, lookup, or chunk-reassembly logic.
package mincast

import (
	"log"
	"time"

	"github.com/bnssim/bns/internal/chain"
	"github.com/bnssim/bns/internal/fabric"
	"github.com/bnssim/bns/internal/peer"
	"github.com/bnssim/bns/internal/proto/kadcast"
	"github.com/bnssim/bns/internal/randstream"
	"github.com/bnssim/bns/internal/scheduler"
	"github.com/bnssim/bns/internal/wire"
)

// Config mirrors kadcast.Config, minus the two fields mincast itself
// supplies to the embedded engine.
type Config struct {
	K, Alpha, Beta int
	FecOverhead    float64
	BootstrapAddrs []fabric.PeerID
}

// Engine wraps a kadcast.Engine, promoting all of its routing, lookup,
// and chunk-reassembly behaviour, and layers the INFORM-driven last-hop
// pull on top.
type Engine struct {
	*kadcast.Engine
	informRetry map[uint64]scheduler.Handle
}

// NewEngine builds a Mincast engine for self.
func NewEngine(self fabric.PeerID, selfID kadcast.NodeID, host *peer.Host, fab fabric.Fabric, sched *scheduler.Scheduler, rng *randstream.Stream, cfg Config) *Engine {
	m := &Engine{informRetry: make(map[uint64]scheduler.Handle)}
	kcfg := kadcast.Config{
		K: cfg.K, Alpha: cfg.Alpha, Beta: cfg.Beta, FecOverhead: cfg.FecOverhead,
		BootstrapAddrs: cfg.BootstrapAddrs,
		Deliver:        m.deliver,
		ExtraDispatch:  m.extraDispatch,
	}
	m.Engine = kadcast.NewEngine(self, selfID, host, fab, sched, rng, kcfg)
	return m
}

// deliver is the bucket-tree recipient policy (spec.md §4.7): every
// selected recipient but the last gets the block's chunks; the last gets
// an INFORM hint instead (indices [0, n-2] chunks, index n-1 INFORM —
// for n==1 that single recipient is INFORM-only).
func (m *Engine) deliver(e *kadcast.Engine, recipients []kadcast.Contact, b chain.Block, height uint16) {
	last := len(recipients) - 1
	for i, r := range recipients {
		if i == last {
			e.SendInform(r.Addr, b.ID)
		} else {
			e.SendChunksTo(r.Addr, b, height)
		}
	}
}

// extraDispatch intercepts INFORM datagrams, which kadcast.Engine's own
// dispatch does not recognize.
func (m *Engine) extraDispatch(e *kadcast.Engine, from fabric.PeerID, typ wire.DatagramType, body []byte) bool {
	if typ != wire.TypeInform {
		return false
	}
	msg, err := wire.DecodeRequestInform(body)
	if err != nil {
		log.Printf("[mincast %s] malformed INFORM from %s: %v", e.Self(), from, err)
		return true
	}
	m.handleInform(from, msg.BlockID)
	return true
}

// handleInform starts a REQUEST retry loop against the informer, stopping
// as soon as any chunk of blockID has arrived from any source (spec.md
// §4.7: the retry is self-suppressing, not tied to the informer
// specifically) or the block is already fully reassembled.
func (m *Engine) handleInform(from fabric.PeerID, blockID uint64) {
	if m.Engine.HasAnyChunk(blockID) || m.Engine.IsDone(blockID) {
		return
	}
	if _, inFlight := m.informRetry[blockID]; inFlight {
		return
	}
	var tick func()
	tick = func() {
		if m.Engine.HasAnyChunk(blockID) || m.Engine.IsDone(blockID) {
			delete(m.informRetry, blockID)
			return
		}
		m.Engine.SendRequest(from, blockID)
		h := m.Engine.Sched().Schedule(clampPositive(m.Engine.RNG().Normal(3, 1)), tick)
		m.informRetry[blockID] = h
	}
	tick()
}

func clampPositive(seconds float64) time.Duration {
	if seconds < 0.01 {
		seconds = 0.01
	}
	return time.Duration(seconds * float64(time.Second))
}
