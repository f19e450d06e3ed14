// Package metrics exposes the simulator's live counters over Prometheus
// (SPEC_FULL.md's domain-stack expansion: the distilled spec reports
// metrics only via CSV at the end of a run, but client_golang is in the
// teacher's own dependency surface and a /metrics endpoint lets an
// operator watch a long-running sweep in flight). The Server wraps it in
// the teacher's rpc.Server start/stop shape — bind synchronously, serve
// in a background goroutine, shut down gracefully.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every gauge/counter this simulator exports for a run.
// Values are absolute counts/gauges, not deltas. cmd/bns sets PeerCount
// at startup and BytesOnWire once the run has finished; BlocksMined,
// BlocksDelivered, ActiveLookups and VirtualTimeSecs are registered but
// not updated by any package in this repo.
type Registry struct {
	reg *prometheus.Registry

	BlocksMined     prometheus.Counter
	BlocksDelivered prometheus.Counter
	BytesOnWire     prometheus.Gauge
	ActiveLookups   prometheus.Gauge
	PeerCount       prometheus.Gauge
	VirtualTimeSecs prometheus.Gauge
}

// New builds a Registry with its own prometheus.Registry (not the global
// default, so multiple simulation runs in one process — e.g. a parameter
// sweep — never collide on metric registration).
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		BlocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bns", Name: "blocks_mined_total", Help: "Blocks mined across all peers.",
		}),
		BlocksDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bns", Name: "blocks_delivered_total", Help: "Block deliveries across all peers (one per peer per block).",
		}),
		BytesOnWire: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bns", Name: "bytes_on_wire", Help: "Running total of bytes the fabric has put on the wire.",
		}),
		ActiveLookups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bns", Name: "active_lookups", Help: "In-flight Kadcast/Mincast node lookups.",
		}),
		PeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bns", Name: "peer_count", Help: "Configured peer count for this run.",
		}),
		VirtualTimeSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bns", Name: "virtual_time_seconds", Help: "Current simulated wall-clock time.",
		}),
	}
	reg.MustRegister(r.BlocksMined, r.BlocksDelivered, r.BytesOnWire, r.ActiveLookups, r.PeerCount, r.VirtualTimeSecs)
	return r
}
