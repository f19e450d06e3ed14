package kadcast

import (
	"testing"
	"time"

	"github.com/bnssim/bns/internal/chain"
	"github.com/bnssim/bns/internal/fabric"
	"github.com/bnssim/bns/internal/peer"
	"github.com/bnssim/bns/internal/randstream"
	"github.com/bnssim/bns/internal/scheduler"
	"github.com/bnssim/bns/internal/wire"
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

func newTestEngine(self fabric.PeerID, selfID NodeID, sched *scheduler.Scheduler, rng *randstream.Stream, fab fabric.Fabric, bootstrap []fabric.PeerID, rec peer.Recorder) (*Engine, *peer.Host) {
	c := chain.New()
	host := peer.NewHost(self, c, nil, false, rec, sched)
	e := NewEngine(self, selfID, host, fab, sched, rng, Config{K: 20, Alpha: 3, Beta: 2, FecOverhead: 0, BootstrapAddrs: bootstrap})
	host.Protocol = e
	return e, host
}

func TestBootstrapPopulatesRoutingTables(t *testing.T) {
	sched := scheduler.New()
	rng := randstream.New(1)
	peers := []fabric.PeerID{"peer-0", "peer-1", "peer-2"}
	fab := fullMeshFabric(sched, rng, peers)

	a, _ := newTestEngine("peer-0", 100, sched, rng, fab, []fabric.PeerID{"peer-1", "peer-2"}, newRecorder())
	b, _ := newTestEngine("peer-1", 200, sched, rng, fab, []fabric.PeerID{"peer-0"}, newRecorder())
	c, _ := newTestEngine("peer-2", 300, sched, rng, fab, []fabric.PeerID{"peer-0"}, newRecorder())
	a.Start()
	b.Start()
	c.Start()

	sched.RunUntil(60 * time.Second)

	if len(a.rt.Closest(200, 10)) == 0 {
		t.Fatalf("expected peer-0 to have learned of at least one other node via PING/PONG")
	}
}

func TestBroadcastPropagatesToAllPeers(t *testing.T) {
	sched := scheduler.New()
	rng := randstream.New(7)
	peers := []fabric.PeerID{"peer-0", "peer-1", "peer-2", "peer-3"}
	fab := fullMeshFabric(sched, rng, peers)

	engines := make([]*Engine, len(peers))
	hosts := make([]*peer.Host, len(peers))
	recs := make([]*recorder, len(peers))
	for i, p := range peers {
		var bootstrap []fabric.PeerID
		if i > 0 {
			bootstrap = []fabric.PeerID{peers[0]}
		}
		recs[i] = newRecorder()
		engines[i], hosts[i] = newTestEngine(p, NodeID(100+i), sched, rng, fab, bootstrap, recs[i])
		engines[i].Start()
	}

	sched.RunUntil(60 * time.Second) // let bootstrap populate routing tables

	blk := chain.NewBlock(7, chain.GenesisID, 500)
	hosts[0].NotifyNewBlock(blk, true)

	sched.RunUntil(90 * time.Second)

	for i, h := range hosts {
		if i == 0 {
			continue
		}
		if !h.Chain.Has(7) {
			t.Fatalf("expected peer-%d to have received block 7", i)
		}
	}
}

func TestHandleChunkIgnoresGenesisBlockID(t *testing.T) {
	sched := scheduler.New()
	rng := randstream.New(1)
	fab := fullMeshFabric(sched, rng, []fabric.PeerID{"peer-0", "peer-1"})
	rec := newRecorder()
	e, _ := newTestEngine("peer-0", 1, sched, rng, fab, nil, rec)

	e.handleChunk("peer-1", wire.Chunk{BlockID: chain.GenesisID})

	if len(rec.ttfb) != 0 {
		t.Fatalf("expected no TTFB recorded for a block_id==0 chunk")
	}
}
