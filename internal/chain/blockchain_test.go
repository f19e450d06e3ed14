package chain

import "testing"

func TestGenesisInvariant(t *testing.T) {
	bc := New()
	g, ok := bc.Get(GenesisID)
	if !ok || g.Height != 0 || g.Size != 0 {
		t.Fatalf("genesis block malformed: %+v (ok=%v)", g, ok)
	}
	if bc.TopID() != GenesisID {
		t.Fatalf("fresh chain top = %d, want genesis", bc.TopID())
	}
}

func TestAddBlockIdempotent(t *testing.T) {
	bc := New()
	b := NewBlock(1, GenesisID, 100)
	if updated := bc.AddBlock(b); !updated {
		t.Fatal("first add should update top")
	}
	if updated := bc.AddBlock(b); updated {
		t.Fatal("re-adding the same id should be a no-op, not advance top")
	}
}

func TestLinearChainHeights(t *testing.T) {
	bc := New()
	bc.AddBlock(NewBlock(1, GenesisID, 10))
	bc.AddBlock(NewBlock(2, 1, 10))
	bc.AddBlock(NewBlock(3, 2, 10))

	b1, _ := bc.Get(1)
	b2, _ := bc.Get(2)
	b3, _ := bc.Get(3)
	if b1.Height != 1 || b2.Height != 2 || b3.Height != 3 {
		t.Fatalf("heights = %d,%d,%d want 1,2,3", b1.Height, b2.Height, b3.Height)
	}
	if bc.TopID() != 3 {
		t.Fatalf("top = %d want 3", bc.TopID())
	}
}

// TestOrphanOrdering is the spec.md §8 end-to-end scenario 5: inject
// B1(prev=0,id=1), B3(prev=2,id=3), then B2(prev=1,id=2); after the third
// AddBlock all three heights resolve and top_id == 3.
func TestOrphanOrdering(t *testing.T) {
	bc := New()
	bc.AddBlock(NewBlock(1, GenesisID, 1))
	if bc.AddBlock(NewBlock(3, 2, 1)) {
		t.Fatal("block 3 should be postponed, not advance top")
	}
	if !bc.IsWaiting(3) {
		t.Fatal("block 3 should be waiting on missing ancestor 2")
	}
	if updated := bc.AddBlock(NewBlock(2, 1, 1)); !updated {
		t.Fatal("block 2's arrival should cascade-resolve block 3 and advance top")
	}

	b1, _ := bc.Get(1)
	b2, _ := bc.Get(2)
	b3, _ := bc.Get(3)
	if b1.Height != 1 || b2.Height != 2 || b3.Height != 3 {
		t.Fatalf("heights = %d,%d,%d want 1,2,3", b1.Height, b2.Height, b3.Height)
	}
	if bc.TopID() != 3 {
		t.Fatalf("top = %d want 3", bc.TopID())
	}
	if bc.IsWaiting(3) {
		t.Fatal("block 3 should no longer be waiting once resolved")
	}
}

func TestWaiterUnionAcrossRepeatedPostponement(t *testing.T) {
	bc := New()
	// Two different blocks both wait on the same missing ancestor (id 5).
	bc.AddBlock(NewBlock(10, 5, 1))
	bc.AddBlock(NewBlock(11, 5, 1))
	if !bc.IsWaiting(10) || !bc.IsWaiting(11) {
		t.Fatal("both postponed blocks should be recorded as waiting")
	}
	// Arrival of an intermediate ancestor chain resolves both.
	bc.AddBlock(NewBlock(5, GenesisID, 1))
	b10, _ := bc.Get(10)
	b11, _ := bc.Get(11)
	if b10.Height == 0 || b11.Height == 0 {
		t.Fatalf("both waiters should resolve once ancestor 5 arrives: got heights %d, %d", b10.Height, b11.Height)
	}
}

func TestSelfLoopNeverResolves(t *testing.T) {
	bc := New()
	bc.AddBlock(NewBlock(42, 42, 1))
	b, _ := bc.Get(42)
	if b.Height != 0 {
		t.Fatalf("self-loop block should never resolve a height, got %d", b.Height)
	}
}

func TestNotifierFiresExactlyOnceOnResolution(t *testing.T) {
	bc := New()
	var notified []uint64
	bc.SetNotifier(func(b Block) { notified = append(notified, b.ID) })

	bc.AddBlock(NewBlock(1, GenesisID, 1))
	bc.AddBlock(NewBlock(3, 2, 1)) // postponed, must not notify yet
	bc.AddBlock(NewBlock(2, 1, 1))

	counts := map[uint64]int{}
	for _, id := range notified {
		counts[id]++
	}
	for _, id := range []uint64{1, 2, 3} {
		if counts[id] != 1 {
			t.Fatalf("block %d notified %d times, want exactly 1 (notified=%v)", id, counts[id], notified)
		}
	}
}
