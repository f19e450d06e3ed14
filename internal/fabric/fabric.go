// Package fabric is the network-fabric external interface spec.md §1
// names as a collaborator, not part of the simulator's core: per-edge
// bandwidth/latency and per-packet delivery with loss. The core consumes
// it only through the Fabric interface; SimFabric is the one concrete,
// in-process implementation this repo ships, driven entirely by the
// scheduler rather than real OS sockets.
package fabric

import "time"

// PeerID is a simulated network address — never a real socket endpoint.
type PeerID string

// StreamHandler receives bytes delivered over a reliable stream socket,
// already reassembled into whatever the sender wrote in one Send call
// (spec.md §4.5's receive pipeline reassembles frames from this).
type StreamHandler func(from PeerID, data []byte)

// DatagramHandler receives one whole unreliable packet.
type DatagramHandler func(from PeerID, payload []byte)

// StreamSocket models a reliable, ordered, per-edge connection — what
// Vanilla runs over.
type StreamSocket interface {
	// Connect establishes a virtual connection from -> to. Idempotent.
	Connect(from, to PeerID) error
	// Send enqueues data for delivery on the from->to edge. No partial
	// sends: the whole frame is delivered as one call to the receiver's
	// handler once the edge's bandwidth/latency delay elapses.
	Send(from, to PeerID, data []byte) error
	// SetStreamHandler installs the receive callback for everything
	// delivered to self, regardless of sender.
	SetStreamHandler(self PeerID, h StreamHandler)
	// Close tears down the from->to edge.
	Close(from, to PeerID)
}

// DatagramSocket models an unreliable, single-packet link — what
// Kadcast/Mincast's DHT and broadcast traffic runs over.
type DatagramSocket interface {
	SendDatagram(from, to PeerID, payload []byte) error
	SetDatagramHandler(self PeerID, h DatagramHandler)
}

// Fabric is the full external interface the propagation engines are
// coded against.
type Fabric interface {
	StreamSocket
	DatagramSocket
	// BytesOnWire is the running total of bytes this fabric has put on
	// the wire (feeds the evaluator's overhead_ratio, spec.md §4.8).
	BytesOnWire() uint64
}

// LinkParams configures one directed edge.
type LinkParams struct {
	BandwidthBps float64
	Latency      time.Duration
	LossProb     float64 // applies to datagrams only; streams are reliable
}
