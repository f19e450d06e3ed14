package wire

import "bytes"

// IDList backs INV, HEADERS and GETDATA: count:u32, ids:u64 × count.
type IDList struct {
	IDs []uint64
}

func (m IDList) Encode() []byte {
	var buf bytes.Buffer
	putU32(&buf, uint32(len(m.IDs)))
	for _, id := range m.IDs {
		putU64(&buf, id)
	}
	return buf.Bytes()
}

func DecodeIDList(b []byte) (IDList, error) {
	count, off, err := readU32(b, 0)
	if err != nil {
		return IDList{}, err
	}
	ids := make([]uint64, 0, count)
	for i := uint32(0); i < count; i++ {
		var id uint64
		id, off, err = readU64(b, off)
		if err != nil {
			return IDList{}, err
		}
		ids = append(ids, id)
	}
	return IDList{IDs: ids}, nil
}

// Range backs GETHEADERS and GETBLOCKS: start_id:u64, stop_id:u64.
type Range struct {
	Start, Stop uint64
}

func (m Range) Encode() []byte {
	var buf bytes.Buffer
	putU64(&buf, m.Start)
	putU64(&buf, m.Stop)
	return buf.Bytes()
}

func DecodeRange(b []byte) (Range, error) {
	start, off, err := readU64(b, 0)
	if err != nil {
		return Range{}, err
	}
	stop, _, err := readU64(b, off)
	if err != nil {
		return Range{}, err
	}
	return Range{Start: start, Stop: stop}, nil
}

// BlockMsg backs BLOCK: block_id:u64, prev_id:u64, payload:block_size bytes.
type BlockMsg struct {
	BlockID uint64
	PrevID  uint64
	Payload []byte
}

func (m BlockMsg) Encode() []byte {
	var buf bytes.Buffer
	putU64(&buf, m.BlockID)
	putU64(&buf, m.PrevID)
	buf.Write(m.Payload)
	return buf.Bytes()
}

func DecodeBlockMsg(b []byte) (BlockMsg, error) {
	blockID, off, err := readU64(b, 0)
	if err != nil {
		return BlockMsg{}, err
	}
	prevID, off, err := readU64(b, off)
	if err != nil {
		return BlockMsg{}, err
	}
	payload := append([]byte(nil), b[off:]...)
	return BlockMsg{BlockID: blockID, PrevID: prevID, Payload: payload}, nil
}
