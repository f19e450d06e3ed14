package topology

import (
	"fmt"
	"time"

	"github.com/bnssim/bns/internal/fabric"
	"github.com/bnssim/bns/internal/randstream"
)

// Kind selects which construction strategy Build uses.
type Kind int

const (
	Star Kind = iota
	Geo
)

// Node is one peer's static placement.
type Node struct {
	PeerID fabric.PeerID
	Region Region // meaningful only for Geo; Star leaves it at its zero value (NorthAmerica) on every node
}

// Params configures topology construction; field names mirror the CLI
// parameters in spec.md §6.
type Params struct {
	Kind             Kind
	NumPeers         int
	StarHubDataRate  float64 // bytes/sec, star hub's link to each leaf
	StarLeafDataRate float64 // bytes/sec, each leaf's link to the hub
}

// hubPeerID is the fixed identity of the star topology's central router.
const hubPeerID fabric.PeerID = "hub"

// Build constructs params.NumPeers peers, configures every link the
// chosen topology implies on fab, and returns the resulting nodes.
// Called once at simulation setup; fab must be freshly constructed with
// no pre-existing links.
func Build(params Params, fab *fabric.SimFabric, rng *randstream.Stream) ([]Node, error) {
	switch params.Kind {
	case Star:
		return buildStar(params, fab), nil
	case Geo:
		return buildGeo(params, fab, rng), nil
	default:
		return nil, fmt.Errorf("topology: unknown kind %d", params.Kind)
	}
}

// buildStar wires one hub and params.NumPeers leaves. Leaf<->hub edges
// run at the configured asymmetric rates; leaf<->leaf edges are modelled
// as relayed through the hub, so they run at the slower of the two leaf
// rates with latency doubled (two hub hops instead of one).
func buildStar(params Params, fab *fabric.SimFabric) []Node {
	const hubLeafLatency = 20 * time.Millisecond

	nodes := make([]Node, 0, params.NumPeers)
	leaves := make([]fabric.PeerID, 0, params.NumPeers)
	for i := 0; i < params.NumPeers; i++ {
		id := fabric.PeerID(fmt.Sprintf("peer-%d", i))
		leaves = append(leaves, id)
		nodes = append(nodes, Node{PeerID: id})
	}

	for _, leaf := range leaves {
		fab.SetLink(hubPeerID, leaf, fabric.LinkParams{BandwidthBps: params.StarHubDataRate, Latency: hubLeafLatency})
		fab.SetLink(leaf, hubPeerID, fabric.LinkParams{BandwidthBps: params.StarLeafDataRate, Latency: hubLeafLatency})
	}
	for _, a := range leaves {
		for _, b := range leaves {
			if a == b {
				continue
			}
			fab.SetLink(a, b, fabric.LinkParams{BandwidthBps: params.StarLeafDataRate, Latency: 2 * hubLeafLatency})
		}
	}
	return nodes
}

// buildGeo scatters peers across the seven regions by drawing each
// peer's region from the population-weighted discrete distribution, then
// wires every ordered pair with a bandwidth/latency sampled from that
// pair's regional rate/latency model — the same two-stage process
// (ReadRegionShares then ConnectRegionLeafs/ConnectRegionRouters) the
// original topology helper uses.
func buildGeo(params Params, fab *fabric.SimFabric, rng *randstream.Stream) []Node {
	weights := make([]float64, len(allRegions))
	for i, r := range allRegions {
		weights[i] = regionShare[r]
	}

	nodes := make([]Node, params.NumPeers)
	for i := 0; i < params.NumPeers; i++ {
		region := allRegions[rng.Discrete(weights)]
		nodes[i] = Node{PeerID: fabric.PeerID(fmt.Sprintf("peer-%d", i)), Region: region}
	}

	for i := range nodes {
		for j := range nodes {
			if i == j {
				continue
			}
			from, to := nodes[i], nodes[j]
			latency := time.Duration(latencyBetween(from.Region, to.Region) * float64(time.Millisecond))
			downStats := downloadRate[to.Region]
			bandwidthMbps := downStats.meanMbps + rng.Normal(0, downStats.sigmaMbps*downStats.sigmaMbps)
			if bandwidthMbps < 1 {
				bandwidthMbps = 1
			}
			fab.SetLink(from.PeerID, to.PeerID, fabric.LinkParams{
				BandwidthBps: bandwidthMbps * 1_000_000 / 8,
				Latency:      latency,
			})
		}
	}
	return nodes
}
