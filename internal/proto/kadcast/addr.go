package kadcast

import (
	"encoding/binary"
	"fmt"

	"github.com/bnssim/bns/internal/fabric"
	"github.com/bnssim/bns/internal/wire"
)

// addrToWire packs a "peer-N" fabric address into the synthetic NodeAddr
// NODES replies carry on the wire. This couples the DHT protocols to
// internal/topology's peer-naming convention ("peer-%d"), the only
// concrete topology this repo builds addresses from.
func addrToWire(id fabric.PeerID) wire.NodeAddr {
	var idx uint32
	fmt.Sscanf(string(id), "peer-%d", &idx)
	var a wire.NodeAddr
	binary.BigEndian.PutUint32(a[:], idx)
	return a
}

func wireToAddr(a wire.NodeAddr) fabric.PeerID {
	idx := binary.BigEndian.Uint32(a[:])
	return fabric.PeerID(fmt.Sprintf("peer-%d", idx))
}
