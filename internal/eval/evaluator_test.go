package eval

import (
	"os"
	"testing"
	"time"

	"github.com/bnssim/bns/internal/chain"
)

func TestEvaluateComputesCoverageAndLatency(t *testing.T) {
	ev := New()
	blk := chain.NewBlock(1, chain.GenesisID, 1000)
	ev.RecordMined("a", blk, 10*time.Second)
	ev.RecordTTFB("b", 1, 11*time.Second)
	ev.RecordTTLB("b", 1, 12*time.Second)
	ev.RecordTTFB("c", 1, 13*time.Second)
	ev.RecordTTLB("c", 1, 14*time.Second)

	r := ev.Evaluate(3, []uint32{1, 1, 1}, 0)
	if len(r.PerBlock) != 1 {
		t.Fatalf("expected 1 block, got %d", len(r.PerBlock))
	}
	b := r.PerBlock[0]
	if b.Coverage < 0.66 || b.Coverage > 0.67 {
		t.Fatalf("coverage = %v, want ~2/3", b.Coverage)
	}
	wantMeanTTFB := (1*time.Second + 3*time.Second) / 2
	if b.MeanTTFB != wantMeanTTFB {
		t.Fatalf("mean TTFB = %v, want %v", b.MeanTTFB, wantMeanTTFB)
	}
}

func TestEvaluateKeepsZeroDeltaObservations(t *testing.T) {
	ev := New()
	blk := chain.NewBlock(1, chain.GenesisID, 1000)
	ev.RecordMined("a", blk, 10*time.Second)
	// "a" observes its own mined block at exactly the mined timestamp —
	// a genuine zero-latency sample, not an absent one, so it's kept.
	ev.RecordTTFB("a", 1, 10*time.Second)
	ev.RecordTTLB("a", 1, 10*time.Second)

	r := ev.Evaluate(1, []uint32{1}, 0)
	if len(r.PerBlock[0].TTFBObservations) != 1 {
		t.Fatalf("expected the zero-delta observation to be kept, got %d observations", len(r.PerBlock[0].TTFBObservations))
	}
	if d, ok := r.PerBlock[0].TTFBObservations["a"]; !ok || d != 0 {
		t.Fatalf("expected peer a's TTFB delta to be 0, got %v (ok=%v)", d, ok)
	}
	if r.PerBlock[0].Coverage != 1.0 {
		t.Fatalf("coverage = %v, want 1.0 (the lone peer is also the miner)", r.PerBlock[0].Coverage)
	}
}

func TestStaleRateAndOverheadRatio(t *testing.T) {
	ev := New()
	ev.RecordMined("a", chain.NewBlock(1, chain.GenesisID, 100), 1*time.Second)
	ev.RecordMined("a", chain.NewBlock(2, 1, 100), 2*time.Second)

	r := ev.Evaluate(2, []uint32{1, 1}, 1000)
	if r.StaleRate != 0.5 {
		t.Fatalf("stale_rate = %v, want 0.5 (2 mined, top height 1)", r.StaleRate)
	}
	wantNecessary := uint64(100*1 + 100*1) // (n_peers-1)=1 per block
	if r.NecessaryTraffic != wantNecessary {
		t.Fatalf("necessary_traffic = %d, want %d", r.NecessaryTraffic, wantNecessary)
	}
	wantOverhead := float64(1000-wantNecessary) / float64(wantNecessary)
	if r.OverheadRatio != wantOverhead {
		t.Fatalf("overhead_ratio = %v, want %v", r.OverheadRatio, wantOverhead)
	}
}

func TestWriteResultsCSVWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/results.csv"
	params := RunParams{Seed: 1, NPeers: 3, Net: "vanilla", Topo: "star"}
	r := Result{MeanCoverage: 1}

	if err := WriteResultsCSV(path, params, r); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteResultsCSV(path, params, r); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 3 { // header + 2 data rows
		t.Fatalf("expected 3 lines (1 header + 2 rows), got %d", lines)
	}
}
