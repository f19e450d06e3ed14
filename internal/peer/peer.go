// Package peer wires one peer's Blockchain, Miner, and propagation
// Protocol together behind the explicit context object Design Notes §9
// calls for, so the mutually-recursive Scheduler/Miner/Peer/Blockchain
// relationship is threaded through plain values instead of
// object-identity callback tables.
package peer

import (
	"time"

	"github.com/bnssim/bns/internal/chain"
	"github.com/bnssim/bns/internal/fabric"
	"github.com/bnssim/bns/internal/scheduler"
)

// Protocol is the shared trait every propagation variant implements
// (spec.md §9: "Protocol = Vanilla(VState) | Kadcast(KState) |
// Mincast(MState) with a shared trait for init_broadcast..."). Receive
// paths are wired directly from the fabric to each engine's own handler
// at construction time, since stream and datagram transports dispatch
// differently; InitBroadcast is the one operation the Host drives
// generically off the Blockchain's notifier.
type Protocol interface {
	InitBroadcast(b chain.Block)
}

// Recorder receives the raw timestamp observations the evaluator later
// aggregates (spec.md §4.8). Mined is stamped once, by the mining peer;
// TTFB/TTLB are stamped by the receiving protocol engine the moment the
// first/last byte of a block arrives at a peer.
type Recorder interface {
	RecordMined(p fabric.PeerID, b chain.Block, at time.Duration)
	RecordTTFB(p fabric.PeerID, blockID uint64, at time.Duration)
	RecordTTLB(p fabric.PeerID, blockID uint64, at time.Duration)
}

// ConnectAcceptor decides whether to accept an inbound connection
// attempt, applying the IN-peer cap and self/duplicate rejection
// (spec.md §4.5's "Accept policy").
type ConnectAcceptor interface {
	AcceptConnect(from fabric.PeerID) bool
}

// Directory is the simulation-wide registry protocol engines use to
// place a connection request in front of the target peer's acceptor,
// standing in for the real handshake a socket accept() would perform.
// Built once per run in cmd/bns and shared by every Vanilla engine
// (Kadcast and Mincast run over datagrams and do not use it).
type Directory struct {
	acceptors map[fabric.PeerID]ConnectAcceptor
}

func NewDirectory() *Directory {
	return &Directory{acceptors: make(map[fabric.PeerID]ConnectAcceptor)}
}

// Register makes id's acceptor reachable by other peers' connection loops.
func (d *Directory) Register(id fabric.PeerID, a ConnectAcceptor) {
	d.acceptors[id] = a
}

// TryConnect asks to's acceptor whether it will take a connection from
// "from". Returns false if to is unknown to the directory.
func (d *Directory) TryConnect(from, to fabric.PeerID) bool {
	a, ok := d.acceptors[to]
	if !ok {
		return false
	}
	return a.AcceptConnect(from)
}

// Host is one simulated node: its identity, its Blockchain, and the
// Protocol variant driving its network behaviour. A Host holds no Miner;
// miners are built separately in cmd/bns and deliver their blocks through
// NotifyNewBlock. Byzantine hosts validate and store every block they
// receive but never broadcast (spec.md §8 scenario 6).
type Host struct {
	ID        fabric.PeerID
	Chain     *chain.Blockchain
	Protocol  Protocol
	Byzantine bool
	Recorder  Recorder
	Sched     *scheduler.Scheduler
}

// NewHost wires chain's notifier to fire InitBroadcast on every
// newly-resolved block, unless this host is byzantine. proto may be nil
// here and assigned to Host.Protocol afterwards (protocol engines take
// the Host in their own constructors), as long as it is set before any
// block is added.
func NewHost(id fabric.PeerID, c *chain.Blockchain, proto Protocol, byzantine bool, rec Recorder, sched *scheduler.Scheduler) *Host {
	h := &Host{ID: id, Chain: c, Protocol: proto, Byzantine: byzantine, Recorder: rec, Sched: sched}
	c.SetNotifier(func(b chain.Block) {
		if !h.Byzantine {
			h.Protocol.InitBroadcast(b)
		}
	})
	return h
}

// NotifyNewBlock implements miner.BlockSink and is also what protocol
// engines call (after their own validation delay) once a received block
// is ready to enter the local Blockchain. mined distinguishes the two
// callers only for the purpose of recording the block's first-mined
// timestamp; AddBlock's own notifier (installed above) handles triggering
// rebroadcast in both cases identically, matching spec.md §4.4's
// "notify_new_block(b, mined) ... triggers add_block -> new_valid_block ->
// protocol init_broadcast" for both the miner and receiver paths.
func (h *Host) NotifyNewBlock(b chain.Block, mined bool) {
	if mined {
		now := h.Sched.Now()
		h.Recorder.RecordMined(h.ID, b, now)
		h.Recorder.RecordTTFB(h.ID, b.ID, now)
		h.Recorder.RecordTTLB(h.ID, b.ID, now)
	}
	h.Chain.AddBlock(b)
}
