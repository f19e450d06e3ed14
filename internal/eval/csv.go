package eval

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/bnssim/bns/internal/fabric"
)

// RunParams is the full CLI parameter set spec.md §6 lists, echoed as the
// leading columns of every results row so a run can be reproduced from
// its own output.
type RunParams struct {
	Seed                int64
	NMinutes            int
	NPeers              int
	NBootstrap          int
	NMiners             int
	NBlocks             int
	BlockSizeFactor     float64
	BlockIntervalFactor float64
	ByzantineFactor     float64
	Net                 string
	Topo                string
	Unsolicited         bool
	KadK                int
	KadAlpha            int
	KadBeta             int
	KadFecOverhead      float64
	MincastUseScores    bool
	StarLeafDataRate    float64
	StarHubDataRate     float64
}

func (p RunParams) header() []string {
	return []string{
		"seed", "n_minutes", "n_peers", "n_bootstrap", "n_miners", "n_blocks",
		"block_size_factor", "block_interval_factor", "byzantine_factor",
		"net", "topo", "unsolicited", "kad_k", "kad_alpha", "kad_beta",
		"kad_fec_overhead", "mincast_use_scores", "star_leaf_data_rate", "star_hub_data_rate",
	}
}

func (p RunParams) row() []string {
	return []string{
		fmt.Sprint(p.Seed), fmt.Sprint(p.NMinutes), fmt.Sprint(p.NPeers), fmt.Sprint(p.NBootstrap),
		fmt.Sprint(p.NMiners), fmt.Sprint(p.NBlocks), fmt.Sprint(p.BlockSizeFactor), fmt.Sprint(p.BlockIntervalFactor),
		fmt.Sprint(p.ByzantineFactor), p.Net, p.Topo, fmt.Sprint(p.Unsolicited), fmt.Sprint(p.KadK),
		fmt.Sprint(p.KadAlpha), fmt.Sprint(p.KadBeta), fmt.Sprint(p.KadFecOverhead), fmt.Sprint(p.MincastUseScores),
		fmt.Sprint(p.StarLeafDataRate), fmt.Sprint(p.StarHubDataRate),
	}
}

// WriteResultsCSV appends one row of params + aggregated metrics to path
// (spec.md §6: "bns_results_<topo>_<net>.csv: one row per run"), writing
// the header first if the file is new or empty.
func WriteResultsCSV(path string, params RunParams, r Result) error {
	w, isNew, closeFn, err := openAppend(path)
	if err != nil {
		return err
	}
	defer closeFn()

	if isNew {
		if err := w.Write(append(params.header(),
			"mean_ttfb_ns", "median_ttfb_ns", "mean_ttlb_ns", "median_ttlb_ns",
			"mean_coverage", "stale_rate", "necessary_traffic", "overhead_ratio",
		)); err != nil {
			return err
		}
	}
	row := append(params.row(),
		fmt.Sprint(r.MeanTTFB.Nanoseconds()), fmt.Sprint(r.MedianTTFB.Nanoseconds()),
		fmt.Sprint(r.MeanTTLB.Nanoseconds()), fmt.Sprint(r.MedianTTLB.Nanoseconds()),
		fmt.Sprintf("%f", r.MeanCoverage), fmt.Sprintf("%f", r.StaleRate),
		fmt.Sprint(r.NecessaryTraffic), fmt.Sprintf("%f", r.OverheadRatio),
	)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// WriteTTFBValuesCSV and WriteTTLBValuesCSV append one row per
// (run, block, peer) observation (spec.md §6's per-peer-observation
// files).
func WriteTTFBValuesCSV(path string, params RunParams, r Result) error {
	return writeValuesCSV(path, params, r, func(b BlockStat) map[fabric.PeerID]time.Duration { return b.TTFBObservations })
}

func WriteTTLBValuesCSV(path string, params RunParams, r Result) error {
	return writeValuesCSV(path, params, r, func(b BlockStat) map[fabric.PeerID]time.Duration { return b.TTLBObservations })
}

func writeValuesCSV(path string, params RunParams, r Result, pick func(BlockStat) map[fabric.PeerID]time.Duration) error {
	w, isNew, closeFn, err := openAppend(path)
	if err != nil {
		return err
	}
	defer closeFn()

	if isNew {
		if err := w.Write(append(params.header(), "block_id", "peer_id", "value_ns")); err != nil {
			return err
		}
	}
	for _, b := range r.PerBlock {
		for peerID, d := range pick(b) {
			row := append(params.row(), fmt.Sprint(b.BlockID), string(peerID), fmt.Sprint(d.Nanoseconds()))
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func openAppend(path string) (*csv.Writer, bool, func() error, error) {
	info, statErr := os.Stat(path)
	isNew := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, nil, err
	}
	return csv.NewWriter(f), isNew, f.Close, nil
}
