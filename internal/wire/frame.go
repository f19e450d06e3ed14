// Package wire implements the fixed-width, big-endian binary formats
// shared by all three propagation protocols (spec.md §6): the
// length-prefixed stream envelope Vanilla uses over reliable sockets, the
// bare datagram envelope Kadcast/Mincast use over unreliable sockets, and
// the message bodies each protocol carries. The length-prefix convention
// mirrors the teacher's core.ComputeTxRoot encoding (4-byte big-endian
// length prefixes over a bytes.Buffer).
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned by DecodeFrame when buf does not yet
// contain a complete frame — callers should wait for more bytes, not
// treat this as a protocol error.
var ErrShortBuffer = errors.New("wire: short buffer")

// ErrMalformed marks a frame that decoded its length/type fields but whose
// body could not be parsed (spec.md §7: "log and drop the packet; keep
// draining the stream").
var ErrMalformed = errors.New("wire: malformed message")

// StreamType labels a Vanilla stream message.
type StreamType byte

const (
	TypeInv         StreamType = 1
	TypeGetHeaders  StreamType = 2
	TypeHeaders     StreamType = 3
	TypeGetData     StreamType = 4
	TypeGetBlocks   StreamType = 5
	TypeBlock       StreamType = 6
)

// EncodeFrame wraps body in the stream envelope: length:u32 (covering
// type+body), type:u8, body.
func EncodeFrame(typ StreamType, body []byte) []byte {
	out := make([]byte, 4+1+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(1+len(body)))
	out[4] = byte(typ)
	copy(out[5:], body)
	return out
}

// DecodeFrame extracts one complete frame from the head of buf. It
// returns the type, body, and the number of bytes consumed. If buf does
// not yet hold a complete frame it returns ErrShortBuffer and the caller
// should wait for more bytes to arrive (spec.md §4.5 receive pipeline:
// "peek length ... repeat while buffer holds a complete frame").
func DecodeFrame(buf []byte) (typ StreamType, body []byte, consumed int, err error) {
	if len(buf) < 4 {
		return 0, nil, 0, ErrShortBuffer
	}
	length := binary.BigEndian.Uint32(buf[0:4])
	if length < 1 {
		return 0, nil, 0, ErrMalformed
	}
	total := 4 + int(length)
	if len(buf) < total {
		return 0, nil, 0, ErrShortBuffer
	}
	typ = StreamType(buf[4])
	body = append([]byte(nil), buf[5:total]...)
	return typ, body, total, nil
}

// DatagramType labels a Kadcast/Mincast datagram message.
type DatagramType byte

const (
	TypePing      DatagramType = 1
	TypePong      DatagramType = 2
	TypeFindNode  DatagramType = 3
	TypeNodes     DatagramType = 4
	TypeBroadcast DatagramType = 5 // chunk
	TypeRequest   DatagramType = 6
	TypeInform    DatagramType = 7
)

// EncodeDatagram wraps body in the bare datagram envelope: type:u8, body
// (no length prefix — the transport delivers whole packets).
func EncodeDatagram(typ DatagramType, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(typ)
	copy(out[1:], body)
	return out
}

// DecodeDatagram splits a received packet into its type and body.
func DecodeDatagram(pkt []byte) (typ DatagramType, body []byte, err error) {
	if len(pkt) < 1 {
		return 0, nil, ErrMalformed
	}
	return DatagramType(pkt[0]), pkt[1:], nil
}

// --- shared field helpers ---

func putU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func putU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readU64(b []byte, off int) (uint64, int, error) {
	if off+8 > len(b) {
		return 0, off, fmt.Errorf("%w: need 8 bytes for u64 at %d, have %d", ErrMalformed, off, len(b)-off)
	}
	return binary.BigEndian.Uint64(b[off : off+8]), off + 8, nil
}

func readU32(b []byte, off int) (uint32, int, error) {
	if off+4 > len(b) {
		return 0, off, fmt.Errorf("%w: need 4 bytes for u32 at %d, have %d", ErrMalformed, off, len(b)-off)
	}
	return binary.BigEndian.Uint32(b[off : off+4]), off + 4, nil
}

func readU16(b []byte, off int) (uint16, int, error) {
	if off+2 > len(b) {
		return 0, off, fmt.Errorf("%w: need 2 bytes for u16 at %d, have %d", ErrMalformed, off, len(b)-off)
	}
	return binary.BigEndian.Uint16(b[off : off+2]), off + 2, nil
}
