package wire

import "bytes"

// NodeAddr is a synthetic IPv4-shaped peer address (spec.md §6 NODES
// wire layout: ipv4:4). The simulator never opens real sockets, but the
// wire format still reserves 4 bytes per contact to match the protocol
// this core is modelled on.
type NodeAddr [4]byte

// PingPong backs PING and PONG: sender_id:u64.
type PingPong struct {
	Sender uint64
}

func (m PingPong) Encode() []byte {
	var buf bytes.Buffer
	putU64(&buf, m.Sender)
	return buf.Bytes()
}

func DecodePingPong(b []byte) (PingPong, error) {
	sender, _, err := readU64(b, 0)
	if err != nil {
		return PingPong{}, err
	}
	return PingPong{Sender: sender}, nil
}

// FindNode backs FINDNODE: sender:u64, target:u64.
type FindNode struct {
	Sender, Target uint64
}

func (m FindNode) Encode() []byte {
	var buf bytes.Buffer
	putU64(&buf, m.Sender)
	putU64(&buf, m.Target)
	return buf.Bytes()
}

func DecodeFindNode(b []byte) (FindNode, error) {
	sender, off, err := readU64(b, 0)
	if err != nil {
		return FindNode{}, err
	}
	target, _, err := readU64(b, off)
	if err != nil {
		return FindNode{}, err
	}
	return FindNode{Sender: sender, Target: target}, nil
}

// NodeContact is one entry of a NODES reply.
type NodeContact struct {
	NodeID uint64
	Addr   NodeAddr
}

// Nodes backs NODES: sender:u64, target:u64, count:u16, [(node_id:u64,
// ipv4:4)] × count.
type Nodes struct {
	Sender, Target uint64
	Contacts       []NodeContact
}

func (m Nodes) Encode() []byte {
	var buf bytes.Buffer
	putU64(&buf, m.Sender)
	putU64(&buf, m.Target)
	putU16(&buf, uint16(len(m.Contacts)))
	for _, c := range m.Contacts {
		putU64(&buf, c.NodeID)
		buf.Write(c.Addr[:])
	}
	return buf.Bytes()
}

func DecodeNodes(b []byte) (Nodes, error) {
	sender, off, err := readU64(b, 0)
	if err != nil {
		return Nodes{}, err
	}
	target, off, err := readU64(b, off)
	if err != nil {
		return Nodes{}, err
	}
	count, off, err := readU16(b, off)
	if err != nil {
		return Nodes{}, err
	}
	contacts := make([]NodeContact, 0, count)
	for i := uint16(0); i < count; i++ {
		var nodeID uint64
		nodeID, off, err = readU64(b, off)
		if err != nil {
			return Nodes{}, err
		}
		if off+4 > len(b) {
			return Nodes{}, ErrMalformed
		}
		var addr NodeAddr
		copy(addr[:], b[off:off+4])
		off += 4
		contacts = append(contacts, NodeContact{NodeID: nodeID, Addr: addr})
	}
	return Nodes{Sender: sender, Target: target, Contacts: contacts}, nil
}

// Chunk backs BROADCAST: sender:u64, block_id:u64, chunk_id:u16,
// prev_id:u64, block_size:u32, n_chunks:u16, height:u16.
type Chunk struct {
	Sender    uint64
	BlockID   uint64
	ChunkID   uint16
	PrevID    uint64
	BlockSize uint32
	NChunks   uint16
	Height    uint16
}

func (m Chunk) Encode() []byte {
	var buf bytes.Buffer
	putU64(&buf, m.Sender)
	putU64(&buf, m.BlockID)
	putU16(&buf, m.ChunkID)
	putU64(&buf, m.PrevID)
	putU32(&buf, m.BlockSize)
	putU16(&buf, m.NChunks)
	putU16(&buf, m.Height)
	return buf.Bytes()
}

func DecodeChunk(b []byte) (Chunk, error) {
	sender, off, err := readU64(b, 0)
	if err != nil {
		return Chunk{}, err
	}
	blockID, off, err := readU64(b, off)
	if err != nil {
		return Chunk{}, err
	}
	chunkID, off, err := readU16(b, off)
	if err != nil {
		return Chunk{}, err
	}
	prevID, off, err := readU64(b, off)
	if err != nil {
		return Chunk{}, err
	}
	blockSize, off, err := readU32(b, off)
	if err != nil {
		return Chunk{}, err
	}
	nChunks, off, err := readU16(b, off)
	if err != nil {
		return Chunk{}, err
	}
	height, _, err := readU16(b, off)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{
		Sender: sender, BlockID: blockID, ChunkID: chunkID, PrevID: prevID,
		BlockSize: blockSize, NChunks: nChunks, Height: height,
	}, nil
}

// RequestInform backs REQUEST and INFORM: sender:u64, block_id:u64
// (identical on-wire shape, as spec.md §4.7 notes for INFORM).
type RequestInform struct {
	Sender  uint64
	BlockID uint64
}

func (m RequestInform) Encode() []byte {
	var buf bytes.Buffer
	putU64(&buf, m.Sender)
	putU64(&buf, m.BlockID)
	return buf.Bytes()
}

func DecodeRequestInform(b []byte) (RequestInform, error) {
	sender, off, err := readU64(b, 0)
	if err != nil {
		return RequestInform{}, err
	}
	blockID, _, err := readU64(b, off)
	if err != nil {
		return RequestInform{}, err
	}
	return RequestInform{Sender: sender, BlockID: blockID}, nil
}
