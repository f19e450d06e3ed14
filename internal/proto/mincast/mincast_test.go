package mincast

import (
	"testing"
	"time"

	"github.com/bnssim/bns/internal/chain"
	"github.com/bnssim/bns/internal/fabric"
	"github.com/bnssim/bns/internal/peer"
	"github.com/bnssim/bns/internal/proto/kadcast"
	"github.com/bnssim/bns/internal/randstream"
	"github.com/bnssim/bns/internal/scheduler"
)

type recorder struct {
	ttfb map[uint64]time.Duration
	ttlb map[uint64]time.Duration
}

func newRecorder() *recorder {
	return &recorder{ttfb: map[uint64]time.Duration{}, ttlb: map[uint64]time.Duration{}}
}
func (r *recorder) RecordMined(p fabric.PeerID, b chain.Block, at time.Duration) {}
func (r *recorder) RecordTTFB(p fabric.PeerID, id uint64, at time.Duration)      { r.ttfb[id] = at }
func (r *recorder) RecordTTLB(p fabric.PeerID, id uint64, at time.Duration)      { r.ttlb[id] = at }

func fullMeshFabric(sched *scheduler.Scheduler, rng *randstream.Stream, peers []fabric.PeerID) *fabric.SimFabric {
	fab := fabric.NewSimFabric(sched, rng)
	for _, a := range peers {
		for _, b := range peers {
			if a == b {
				continue
			}
			fab.SetLink(a, b, fabric.LinkParams{BandwidthBps: 10_000_000, Latency: time.Millisecond})
		}
	}
	return fab
}

func newTestEngine(self fabric.PeerID, selfID kadcast.NodeID, sched *scheduler.Scheduler, rng *randstream.Stream, fab fabric.Fabric, bootstrap []fabric.PeerID, rec peer.Recorder) (*Engine, *peer.Host) {
	c := chain.New()
	host := peer.NewHost(self, c, nil, false, rec, sched)
	e := NewEngine(self, selfID, host, fab, sched, rng, Config{K: 20, Alpha: 3, Beta: 1, BootstrapAddrs: bootstrap})
	host.Protocol = e
	return e, host
}

// With Beta=1, every bucket's one selected recipient is INFORM-only
// (deliver's n==1 case), so propagation depends entirely on the
// INFORM -> REQUEST -> chunks pull path working end to end.
func TestBlockPropagatesViaInformPullWithBetaOne(t *testing.T) {
	sched := scheduler.New()
	rng := randstream.New(3)
	peers := []fabric.PeerID{"peer-0", "peer-1", "peer-2"}
	fab := fullMeshFabric(sched, rng, peers)

	e0, h0 := newTestEngine("peer-0", 100, sched, rng, fab, nil, newRecorder())
	e1, h1 := newTestEngine("peer-1", 200, sched, rng, fab, []fabric.PeerID{"peer-0"}, newRecorder())
	e2, h2 := newTestEngine("peer-2", 300, sched, rng, fab, []fabric.PeerID{"peer-0"}, newRecorder())
	e0.Start()
	e1.Start()
	e2.Start()

	sched.RunUntil(60 * time.Second)

	blk := chain.NewBlock(9, chain.GenesisID, 400)
	h0.NotifyNewBlock(blk, true)

	sched.RunUntil(120 * time.Second)

	if !h1.Chain.Has(9) {
		t.Fatalf("expected peer-1 to have pulled block 9 via INFORM/REQUEST")
	}
	if !h2.Chain.Has(9) {
		t.Fatalf("expected peer-2 to have pulled block 9 via INFORM/REQUEST")
	}
}

func TestDeliverSplitsChunksAndInform(t *testing.T) {
	sched := scheduler.New()
	rng := randstream.New(1)
	fab := fullMeshFabric(sched, rng, []fabric.PeerID{"peer-0", "peer-1", "peer-2"})
	e, _ := newTestEngine("peer-0", 1, sched, rng, fab, nil, newRecorder())

	recipients := []kadcast.Contact{
		{Addr: "peer-1", NodeID: 2},
		{Addr: "peer-2", NodeID: 3},
	}
	// Exercises deliver directly: two recipients, first gets chunks,
	// second gets INFORM. Absence of a panic and correct indexing is
	// what this asserts; wire-level effects are covered by the
	// end-to-end propagation test above.
	e.deliver(e.Engine, recipients, chain.NewBlock(1, chain.GenesisID, 100), 0)
}
