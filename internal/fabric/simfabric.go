package fabric

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bnssim/bns/internal/randstream"
	"github.com/bnssim/bns/internal/scheduler"
)

type edgeKey struct {
	from, to PeerID
}

// SimFabric is the scheduler-driven Fabric implementation this repo
// ships. Every call computes a delivery time from the edge's configured
// bandwidth and latency and schedules the receiver's handler at that
// time; nothing here touches a real socket.
type SimFabric struct {
	sched *scheduler.Scheduler
	rng   *randstream.Stream

	links map[edgeKey]LinkParams
	// busyUntil is the virtual-time serialization queue for stream
	// sends on an edge: a frame cannot start transmitting before the
	// previous one on the same edge finished. This alone gives FIFO,
	// non-overlapping delivery without a separate queue data structure.
	busyUntil map[edgeKey]time.Duration

	streamHandlers   map[PeerID]StreamHandler
	datagramHandlers map[PeerID]DatagramHandler
	connected        map[edgeKey]bool

	bytesOnWire atomic.Uint64
}

// NewSimFabric creates an empty fabric driven by sched, using rng for
// loss draws. Links must be configured with SetLink before Connect or
// Send will succeed.
func NewSimFabric(sched *scheduler.Scheduler, rng *randstream.Stream) *SimFabric {
	return &SimFabric{
		sched:            sched,
		rng:              rng,
		links:            make(map[edgeKey]LinkParams),
		busyUntil:        make(map[edgeKey]time.Duration),
		streamHandlers:   make(map[PeerID]StreamHandler),
		datagramHandlers: make(map[PeerID]DatagramHandler),
		connected:        make(map[edgeKey]bool),
	}
}

// SetLink configures the from->to directed edge. Topologies call this
// once per ordered pair at startup (internal/topology).
func (f *SimFabric) SetLink(from, to PeerID, p LinkParams) {
	f.links[edgeKey{from, to}] = p
}

func (f *SimFabric) Connect(from, to PeerID) error {
	key := edgeKey{from, to}
	if _, ok := f.links[key]; !ok {
		return fmt.Errorf("fabric: no link configured for %s->%s", from, to)
	}
	f.connected[key] = true
	return nil
}

func (f *SimFabric) Close(from, to PeerID) {
	delete(f.connected, edgeKey{from, to})
}

func (f *SimFabric) SetStreamHandler(self PeerID, h StreamHandler) {
	f.streamHandlers[self] = h
}

func (f *SimFabric) Send(from, to PeerID, data []byte) error {
	key := edgeKey{from, to}
	if !f.connected[key] {
		return fmt.Errorf("fabric: %s->%s not connected", from, to)
	}
	link, ok := f.links[key]
	if !ok {
		return fmt.Errorf("fabric: no link configured for %s->%s", from, to)
	}
	now := f.sched.Now()
	start := now
	if prev := f.busyUntil[key]; prev > start {
		start = prev
	}
	serializeFor := serializationDelay(len(data), link.BandwidthBps)
	finishSerialize := start + serializeFor
	f.busyUntil[key] = finishSerialize
	deliverAt := finishSerialize + link.Latency

	f.bytesOnWire.Add(uint64(len(data)))

	delay := deliverAt - now
	f.sched.Schedule(delay, func() {
		h, ok := f.streamHandlers[to]
		if !ok {
			return
		}
		h(from, data)
	})
	return nil
}

func (f *SimFabric) SetDatagramHandler(self PeerID, h DatagramHandler) {
	f.datagramHandlers[self] = h
}

func (f *SimFabric) SendDatagram(from, to PeerID, payload []byte) error {
	key := edgeKey{from, to}
	link, ok := f.links[key]
	if !ok {
		return fmt.Errorf("fabric: no link configured for %s->%s", from, to)
	}
	f.bytesOnWire.Add(uint64(len(payload)))

	if link.LossProb > 0 && f.rng.Uniform(0, 1) < link.LossProb {
		return nil // dropped in flight: no handler scheduled
	}

	delay := serializationDelay(len(payload), link.BandwidthBps) + link.Latency
	f.sched.Schedule(delay, func() {
		h, ok := f.datagramHandlers[to]
		if !ok {
			return
		}
		h(from, payload)
	})
	return nil
}

func (f *SimFabric) BytesOnWire() uint64 {
	return f.bytesOnWire.Load()
}

// serializationDelay is how long it takes to put n bytes on a link of
// the given bandwidth. A zero or unset bandwidth is treated as
// instantaneous (used by tests that only care about latency/loss).
func serializationDelay(n int, bandwidthBps float64) time.Duration {
	if bandwidthBps <= 0 {
		return 0
	}
	seconds := float64(n) / bandwidthBps
	return time.Duration(seconds * float64(time.Second))
}
