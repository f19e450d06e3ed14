package peer

import (
	"testing"
	"time"

	"github.com/bnssim/bns/internal/chain"
	"github.com/bnssim/bns/internal/fabric"
	"github.com/bnssim/bns/internal/scheduler"
)

type fakeProtocol struct {
	broadcasts []chain.Block
}

func (p *fakeProtocol) InitBroadcast(b chain.Block) {
	p.broadcasts = append(p.broadcasts, b)
}

type fakeRecorder struct {
	mined []chain.Block
	ttfb  map[uint64]time.Duration
	ttlb  map[uint64]time.Duration
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{ttfb: make(map[uint64]time.Duration), ttlb: make(map[uint64]time.Duration)}
}

func (r *fakeRecorder) RecordMined(p fabric.PeerID, b chain.Block, at time.Duration) {
	r.mined = append(r.mined, b)
}
func (r *fakeRecorder) RecordTTFB(p fabric.PeerID, blockID uint64, at time.Duration) { r.ttfb[blockID] = at }
func (r *fakeRecorder) RecordTTLB(p fabric.PeerID, blockID uint64, at time.Duration) { r.ttlb[blockID] = at }

type alwaysAccept struct{ calls []fabric.PeerID }

func (a *alwaysAccept) AcceptConnect(from fabric.PeerID) bool {
	a.calls = append(a.calls, from)
	return true
}

type alwaysRefuse struct{}

func (alwaysRefuse) AcceptConnect(from fabric.PeerID) bool { return false }

func TestHostForwardsToProtocolUnlessByzantine(t *testing.T) {
	sched := scheduler.New()
	proto := &fakeProtocol{}
	bc := chain.New()
	_ = NewHost("p0", bc, proto, false, newFakeRecorder(), sched)

	b := chain.NewBlock(1, chain.GenesisID, 100)
	bc.AddBlock(b)

	if len(proto.broadcasts) != 1 || proto.broadcasts[0].ID != 1 {
		t.Fatalf("expected InitBroadcast to fire once for block 1, got %+v", proto.broadcasts)
	}
}

func TestByzantineHostNeverBroadcasts(t *testing.T) {
	sched := scheduler.New()
	proto := &fakeProtocol{}
	bc := chain.New()
	_ = NewHost("p0", bc, proto, true, newFakeRecorder(), sched)

	bc.AddBlock(chain.NewBlock(1, chain.GenesisID, 100))
	if len(proto.broadcasts) != 0 {
		t.Fatalf("byzantine host should never broadcast, got %d calls", len(proto.broadcasts))
	}
}

func TestNotifyNewBlockRecordsMinedOnlyWhenMined(t *testing.T) {
	sched := scheduler.New()
	proto := &fakeProtocol{}
	rec := newFakeRecorder()
	bc := chain.New()
	h := NewHost("p0", bc, proto, false, rec, sched)

	b := chain.NewBlock(1, chain.GenesisID, 100)
	h.NotifyNewBlock(b, true)
	if len(rec.mined) != 1 {
		t.Fatalf("expected one mined record, got %d", len(rec.mined))
	}

	b2 := chain.NewBlock(2, 1, 100)
	h.NotifyNewBlock(b2, false)
	if len(rec.mined) != 1 {
		t.Fatalf("expected mined count to stay 1 after a received (not mined) block, got %d", len(rec.mined))
	}
	if !bc.Has(2) {
		t.Fatalf("expected block 2 to have been added to the chain")
	}
}

func TestDirectoryAcceptAndRefuse(t *testing.T) {
	d := NewDirectory()
	acc := &alwaysAccept{}
	d.Register("b", acc)
	d.Register("c", alwaysRefuse{})

	if !d.TryConnect("a", "b") {
		t.Fatalf("expected b to accept connection from a")
	}
	if d.TryConnect("a", "c") {
		t.Fatalf("expected c to refuse connection from a")
	}
	if d.TryConnect("a", "unknown") {
		t.Fatalf("expected unregistered peer to refuse connection")
	}
	if len(acc.calls) != 1 || acc.calls[0] != "a" {
		t.Fatalf("expected acceptor to observe call from a, got %v", acc.calls)
	}
}
