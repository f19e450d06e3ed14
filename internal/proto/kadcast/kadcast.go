package kadcast

import (
	"log"
	"time"

	"github.com/bnssim/bns/internal/chain"
	"github.com/bnssim/bns/internal/fabric"
	"github.com/bnssim/bns/internal/peer"
	"github.com/bnssim/bns/internal/randstream"
	"github.com/bnssim/bns/internal/scheduler"
	"github.com/bnssim/bns/internal/wire"
)

// validationDelayPerByte matches Vanilla's size-linear validation cost
// (spec.md §4.5/§4.6 both charge it on the final, reassembled block).
const validationDelayPerByte = 200 * time.Nanosecond

// lookupEntry is one candidate in an in-flight node lookup.
type lookupEntry struct {
	addr    fabric.PeerID
	id      NodeID
	queried bool
}

// Config tunes one Engine. Deliver and ExtraDispatch are the two
// extension points Mincast (spec.md §4.7) composes against rather than
// duplicating the whole engine: Deliver picks what a selected recipient
// gets (chunks, or an INFORM hint); ExtraDispatch handles datagram types
// this engine's own dispatch does not recognize.
type Config struct {
	K, Alpha, Beta int
	FecOverhead    float64
	BootstrapAddrs []fabric.PeerID

	Deliver       func(e *Engine, recipients []Contact, b chain.Block, height uint16)
	ExtraDispatch func(e *Engine, from fabric.PeerID, typ wire.DatagramType, body []byte) bool
}

// Engine is the Kadcast propagation protocol (spec.md §4.6): a Kademlia
// routing table plus a recursive bucket-tree chunk broadcast run entirely
// over unreliable datagrams.
type Engine struct {
	self   fabric.PeerID
	selfID NodeID
	host   *peer.Host
	fab    fabric.Fabric
	sched  *scheduler.Scheduler
	rng    *randstream.Stream
	rt     *RoutingTable
	cfg    Config

	lookups map[NodeID]map[NodeID]*lookupEntry

	seenChunks    map[uint64]map[uint16]bool
	receivedCount map[uint64]int
	maxSeenHeight map[uint64]uint16
	doneBlocks    map[uint64]bool
	recovery      map[uint64]scheduler.Handle
}

// NewEngine builds an engine for self, identified on the DHT by selfID.
func NewEngine(self fabric.PeerID, selfID NodeID, host *peer.Host, fab fabric.Fabric, sched *scheduler.Scheduler, rng *randstream.Stream, cfg Config) *Engine {
	if cfg.K <= 0 {
		cfg.K = 20
	}
	if cfg.Alpha <= 0 {
		cfg.Alpha = 3
	}
	if cfg.Beta <= 0 {
		cfg.Beta = 2
	}
	return &Engine{
		self: self, selfID: selfID, host: host, fab: fab, sched: sched, rng: rng, cfg: cfg,
		rt:            NewRoutingTable(selfID, cfg.K),
		lookups:       make(map[NodeID]map[NodeID]*lookupEntry),
		seenChunks:    make(map[uint64]map[uint16]bool),
		receivedCount: make(map[uint64]int),
		maxSeenHeight: make(map[uint64]uint16),
		doneBlocks:    make(map[uint64]bool),
		recovery:      make(map[uint64]scheduler.Handle),
	}
}

// Start registers the datagram handler and schedules bootstrap, the
// initial self-lookup, and the recurring bucket refresh (spec.md §4.6).
func (e *Engine) Start() {
	e.fab.SetDatagramHandler(e.self, e.onReceive)

	for _, addr := range e.cfg.BootstrapAddrs {
		addr := addr
		delay := clampPositive(e.rng.Normal(10, 5))
		e.sched.Schedule(delay, func() { e.sendPing(addr) })
	}

	e.sched.Schedule(clampPositive(e.rng.Normal(30, 10)), func() { e.Lookup(e.selfID) })
	e.scheduleRefresh()
}

func (e *Engine) scheduleRefresh() {
	e.sched.Schedule(clampPositive(e.rng.Normal(100, 30)), func() {
		e.refreshBuckets()
		e.scheduleRefresh()
	})
}

// refreshBuckets re-runs a self lookup to keep non-empty buckets fresh.
// A full per-bucket random-target refresh is the fuller Kademlia
// maintenance scheme; this simulator only needs live-enough routing
// tables to drive broadcast trees, so a periodic self-lookup stands in.
func (e *Engine) refreshBuckets() {
	e.Lookup(e.selfID)
}

func clampPositive(seconds float64) time.Duration {
	if seconds < 0.01 {
		seconds = 0.01
	}
	return time.Duration(seconds * float64(time.Second))
}

// --- accessors Mincast composes against ---

func (e *Engine) Self() fabric.PeerID    { return e.self }
func (e *Engine) SelfNodeID() NodeID     { return e.selfID }
func (e *Engine) Host() *peer.Host       { return e.host }
func (e *Engine) Sched() *scheduler.Scheduler { return e.sched }
func (e *Engine) RNG() *randstream.Stream { return e.rng }
func (e *Engine) RoutingTable() *RoutingTable { return e.rt }

// HasAnyChunk reports whether at least one chunk of blockID has arrived
// (or the block is already fully reassembled).
func (e *Engine) HasAnyChunk(blockID uint64) bool {
	return e.receivedCount[blockID] > 0 || e.doneBlocks[blockID]
}

func (e *Engine) IsDone(blockID uint64) bool { return e.doneBlocks[blockID] }

// --- datagram send helpers ---

func (e *Engine) sendPing(to fabric.PeerID) {
	e.fab.SendDatagram(e.self, to, wire.EncodeDatagram(wire.TypePing, wire.PingPong{Sender: uint64(e.selfID)}.Encode()))
}

func (e *Engine) sendPong(to fabric.PeerID) {
	e.fab.SendDatagram(e.self, to, wire.EncodeDatagram(wire.TypePong, wire.PingPong{Sender: uint64(e.selfID)}.Encode()))
}

func (e *Engine) sendFindNode(to fabric.PeerID, target NodeID) {
	msg := wire.FindNode{Sender: uint64(e.selfID), Target: uint64(target)}
	e.fab.SendDatagram(e.self, to, wire.EncodeDatagram(wire.TypeFindNode, msg.Encode()))
}

func (e *Engine) replyNodes(to fabric.PeerID, target NodeID) {
	closest := e.rt.Closest(target, e.cfg.K)
	contacts := make([]wire.NodeContact, len(closest))
	for i, c := range closest {
		contacts[i] = wire.NodeContact{NodeID: uint64(c.NodeID), Addr: addrToWire(c.Addr)}
	}
	msg := wire.Nodes{Sender: uint64(e.selfID), Target: uint64(target), Contacts: contacts}
	e.fab.SendDatagram(e.self, to, wire.EncodeDatagram(wire.TypeNodes, msg.Encode()))
}

// SendChunksTo transmits a block's full chunk set (required + FEC
// padding) to addr, in random order (spec.md §4.6). Each chunk datagram
// holds only the chunk header; no payload bytes are sent.
func (e *Engine) SendChunksTo(addr fabric.PeerID, b chain.Block, height uint16) {
	plan := planChunks(b.Size, e.cfg.FecOverhead)
	order := make([]uint16, plan.total())
	for i := range order {
		order[i] = uint16(i)
	}
	for i := len(order) - 1; i > 0; i-- {
		j := int(e.rng.UniformInt(0, uint64(i+1)))
		order[i], order[j] = order[j], order[i]
	}
	for _, cid := range order {
		msg := wire.Chunk{
			Sender: uint64(e.selfID), BlockID: b.ID, ChunkID: cid, PrevID: b.PrevID,
			BlockSize: b.Size, NChunks: plan.required, Height: height,
		}
		e.fab.SendDatagram(e.self, addr, wire.EncodeDatagram(wire.TypeBroadcast, msg.Encode()))
	}
}

// SendInform sends an INFORM hint for blockID (spec.md §4.7): identical
// on-wire shape to REQUEST, different handler on the receiving side.
func (e *Engine) SendInform(to fabric.PeerID, blockID uint64) {
	msg := wire.RequestInform{Sender: uint64(e.selfID), BlockID: blockID}
	e.fab.SendDatagram(e.self, to, wire.EncodeDatagram(wire.TypeInform, msg.Encode()))
}

func (e *Engine) sendRequest(to fabric.PeerID, blockID uint64) {
	msg := wire.RequestInform{Sender: uint64(e.selfID), BlockID: blockID}
	e.fab.SendDatagram(e.self, to, wire.EncodeDatagram(wire.TypeRequest, msg.Encode()))
}

// SendRequest issues a REQUEST for blockID to addr. Exported for Mincast's
// INFORM-driven retry loop, which pulls from the informer rather than
// waiting on the generic missing-ancestor recovery path.
func (e *Engine) SendRequest(to fabric.PeerID, blockID uint64) {
	e.sendRequest(to, blockID)
}

// --- receive path ---

func (e *Engine) onReceive(from fabric.PeerID, pkt []byte) {
	typ, body, err := wire.DecodeDatagram(pkt)
	if err != nil {
		log.Printf("[kadcast %s] malformed datagram from %s: %v", e.self, from, err)
		return
	}
	e.dispatch(from, typ, body)
}

func (e *Engine) dispatch(from fabric.PeerID, typ wire.DatagramType, body []byte) {
	switch typ {
	case wire.TypePing:
		m, err := wire.DecodePingPong(body)
		if err != nil {
			log.Printf("[kadcast %s] malformed PING from %s: %v", e.self, from, err)
			return
		}
		e.rt.Observe(Contact{Addr: from, NodeID: NodeID(m.Sender)})
		e.sendPong(from)

	case wire.TypePong:
		m, err := wire.DecodePingPong(body)
		if err != nil {
			log.Printf("[kadcast %s] malformed PONG from %s: %v", e.self, from, err)
			return
		}
		e.rt.Observe(Contact{Addr: from, NodeID: NodeID(m.Sender)})

	case wire.TypeFindNode:
		m, err := wire.DecodeFindNode(body)
		if err != nil {
			log.Printf("[kadcast %s] malformed FINDNODE from %s: %v", e.self, from, err)
			return
		}
		e.rt.Observe(Contact{Addr: from, NodeID: NodeID(m.Sender)})
		e.replyNodes(from, NodeID(m.Target))

	case wire.TypeNodes:
		m, err := wire.DecodeNodes(body)
		if err != nil {
			log.Printf("[kadcast %s] malformed NODES from %s: %v", e.self, from, err)
			return
		}
		e.handleNodes(m)

	case wire.TypeBroadcast:
		c, err := wire.DecodeChunk(body)
		if err != nil {
			log.Printf("[kadcast %s] malformed chunk from %s: %v", e.self, from, err)
			return
		}
		e.handleChunk(from, c)

	case wire.TypeRequest:
		m, err := wire.DecodeRequestInform(body)
		if err != nil {
			log.Printf("[kadcast %s] malformed REQUEST from %s: %v", e.self, from, err)
			return
		}
		e.handleRequest(from, m)

	default:
		if e.cfg.ExtraDispatch != nil && e.cfg.ExtraDispatch(e, from, typ, body) {
			return
		}
		log.Printf("[kadcast %s] unrecognized datagram type %d from %s", e.self, typ, from)
	}
}

// --- node lookup ---

// Lookup runs an iterative alpha-parallel FINDNODE search for target
// (spec.md §4.6): seed from the routing table's current closest
// contacts, fire alpha queries at a time, merge replies in, and stop once
// every candidate within the k closest has been queried or 10s elapse.
func (e *Engine) Lookup(target NodeID) {
	state := make(map[NodeID]*lookupEntry)
	for _, c := range e.rt.Closest(target, e.cfg.K) {
		state[c.NodeID] = &lookupEntry{addr: c.Addr, id: c.NodeID}
	}
	e.lookups[target] = state
	e.lookupStep(target)

	e.sched.Schedule(10*time.Second, func() {
		delete(e.lookups, target)
	})
}

func (e *Engine) lookupStep(target NodeID) {
	state, ok := e.lookups[target]
	if !ok {
		return
	}
	unqueried := e.closestUnqueried(state, target, e.cfg.Alpha)
	for _, ent := range unqueried {
		ent.queried = true
		e.sendFindNode(ent.addr, target)
	}
}

func (e *Engine) closestUnqueried(state map[NodeID]*lookupEntry, target NodeID, n int) []*lookupEntry {
	var candidates []*lookupEntry
	for _, ent := range state {
		if !ent.queried {
			candidates = append(candidates, ent)
		}
	}
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && Distance(target, candidates[j].id) < Distance(target, candidates[j-1].id); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	if n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates
}

func (e *Engine) handleNodes(m wire.Nodes) {
	target := NodeID(m.Target)
	state, ok := e.lookups[target]
	for _, c := range m.Contacts {
		addr := wireToAddr(c.Addr)
		id := NodeID(c.NodeID)
		e.rt.Observe(Contact{Addr: addr, NodeID: id})
		if ok {
			if _, exists := state[id]; !exists {
				state[id] = &lookupEntry{addr: addr, id: id}
			}
		}
	}
	if !ok {
		return
	}
	e.trimLookup(target)
	e.lookupStep(target)
}

// trimLookup keeps state bounded to the k entries closest to target,
// mirroring the routing table's own bucket bound so a lookup against a
// well-populated network doesn't grow without limit.
func (e *Engine) trimLookup(target NodeID) {
	state := e.lookups[target]
	entries := make([]*lookupEntry, 0, len(state))
	for _, ent := range state {
		entries = append(entries, ent)
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && Distance(target, entries[j].id) < Distance(target, entries[j-1].id); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if len(entries) > e.cfg.K {
		entries = entries[:e.cfg.K]
	}
	trimmed := make(map[NodeID]*lookupEntry, len(entries))
	for _, ent := range entries {
		trimmed[ent.id] = ent
	}
	e.lookups[target] = trimmed
}

// --- broadcast ---

// InitBroadcast implements peer.Protocol. For a block this peer mined
// itself (no captured max_seen_height) it starts the tree descent at the
// root, height ID_LEN; for a block that arrived over the network, it
// reuses the height captured when its chunks arrived, so forwarding
// continues the descent rather than restarting it (spec.md §4.6: "the
// notify_new_valid_block hook calls broadcast_block - forwarding uses the
// local max_seen_height captured when chunks arrived, yielding
// tree-descent behavior").
func (e *Engine) InitBroadcast(b chain.Block) {
	h, ok := e.maxSeenHeight[b.ID]
	if !ok {
		h = IDLen
	}
	delete(e.maxSeenHeight, b.ID)
	e.doneBlocks[b.ID] = true
	e.broadcastBlock(b, h)
}

func (e *Engine) broadcastBlock(b chain.Block, height uint16) {
	deliver := e.cfg.Deliver
	if deliver == nil {
		deliver = defaultDeliver
	}
	for i := int(height) - 1; i >= 0; i-- {
		bucket := e.rt.Bucket(i)
		if len(bucket) == 0 {
			continue
		}
		n := e.cfg.Beta
		if n > len(bucket) {
			n = len(bucket)
		}
		recipients := e.pickRandom(bucket, n)
		deliver(e, recipients, b, uint16(i))
	}
}

func defaultDeliver(e *Engine, recipients []Contact, b chain.Block, height uint16) {
	for _, r := range recipients {
		e.SendChunksTo(r.Addr, b, height)
	}
}

func (e *Engine) pickRandom(bucket []Contact, n int) []Contact {
	shuffled := make([]Contact, len(bucket))
	copy(shuffled, bucket)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := int(e.rng.UniformInt(0, uint64(i+1)))
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

// --- chunk receive / reassembly ---

func (e *Engine) handleChunk(from fabric.PeerID, c wire.Chunk) {
	if c.BlockID == chain.GenesisID {
		return
	}
	blockID := c.BlockID

	if e.receivedCount[blockID] == 0 && !e.doneBlocks[blockID] {
		e.host.Recorder.RecordTTFB(e.self, blockID, e.sched.Now())
	}

	if c.PrevID != chain.GenesisID && !e.doneBlocks[c.PrevID] && !e.host.Chain.Has(c.PrevID) {
		e.startRecovery(c.PrevID, from)
	}

	if e.doneBlocks[blockID] {
		return
	}
	seen := e.seenChunks[blockID]
	if seen == nil {
		seen = make(map[uint16]bool)
		e.seenChunks[blockID] = seen
	}
	if seen[c.ChunkID] {
		return
	}
	seen[c.ChunkID] = true

	if c.Height > e.maxSeenHeight[blockID] {
		e.maxSeenHeight[blockID] = c.Height
	}
	e.receivedCount[blockID]++

	if uint16(e.receivedCount[blockID]) < c.NChunks {
		return
	}

	e.doneBlocks[blockID] = true
	e.host.Recorder.RecordTTLB(e.self, blockID, e.sched.Now())
	b := chain.NewBlock(blockID, c.PrevID, c.BlockSize)
	delay := time.Duration(c.BlockSize) * validationDelayPerByte
	e.sched.Schedule(delay, func() {
		e.host.NotifyNewBlock(b, false)
	})
}

// startRecovery drives a retry loop requesting a missing ancestor from
// the peer that surfaced it, until the ancestor arrives by any path
// (spec.md §4.6's "send_request(prev_id), retry on a timer until the
// ancestor resolves").
func (e *Engine) startRecovery(blockID uint64, from fabric.PeerID) {
	if _, inFlight := e.recovery[blockID]; inFlight {
		return
	}
	var tick func()
	tick = func() {
		if e.host.Chain.Has(blockID) || e.doneBlocks[blockID] {
			delete(e.recovery, blockID)
			return
		}
		e.sendRequest(from, blockID)
		h := e.sched.Schedule(clampPositive(e.rng.Normal(5, 3)), tick)
		e.recovery[blockID] = h
	}
	tick()
}

func (e *Engine) handleRequest(from fabric.PeerID, m wire.RequestInform) {
	b, ok := e.host.Chain.Get(m.BlockID)
	if !ok {
		return
	}
	e.SendChunksTo(from, b, 0)
}
