package wire

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	body := IDList{IDs: []uint64{1, 2, 3}}.Encode()
	frame := EncodeFrame(TypeInv, body)

	typ, decodedBody, consumed, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if consumed != len(frame) {
		t.Fatalf("consumed = %d, want %d", consumed, len(frame))
	}
	if typ != TypeInv {
		t.Fatalf("type = %d, want %d", typ, TypeInv)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Fatalf("body mismatch")
	}

	list, err := DecodeIDList(decodedBody)
	if err != nil {
		t.Fatalf("DecodeIDList: %v", err)
	}
	if len(list.IDs) != 3 || list.IDs[0] != 1 || list.IDs[2] != 3 {
		t.Fatalf("IDs = %v, want [1 2 3]", list.IDs)
	}
}

func TestFrameShortBufferThenComplete(t *testing.T) {
	frame := EncodeFrame(TypeBlock, BlockMsg{BlockID: 7, PrevID: 6, Payload: []byte("hello")}.Encode())
	// Feed it byte by byte; only the final call should succeed.
	for i := 1; i < len(frame); i++ {
		if _, _, _, err := DecodeFrame(frame[:i]); err != ErrShortBuffer {
			t.Fatalf("at %d bytes expected ErrShortBuffer, got %v", i, err)
		}
	}
	typ, body, consumed, err := DecodeFrame(frame)
	if err != nil {
		t.Fatalf("DecodeFrame complete: %v", err)
	}
	if typ != TypeBlock || consumed != len(frame) {
		t.Fatalf("unexpected typ=%d consumed=%d", typ, consumed)
	}
	msg, err := DecodeBlockMsg(body)
	if err != nil {
		t.Fatalf("DecodeBlockMsg: %v", err)
	}
	if msg.BlockID != 7 || msg.PrevID != 6 || string(msg.Payload) != "hello" {
		t.Fatalf("decoded = %+v", msg)
	}
}

func TestRangeRoundTrip(t *testing.T) {
	r := Range{Start: 10, Stop: 20}
	got, err := DecodeRange(r.Encode())
	if err != nil || got != r {
		t.Fatalf("got %+v, err %v, want %+v", got, err, r)
	}
}

func TestDatagramRoundTrip(t *testing.T) {
	c := Chunk{Sender: 1, BlockID: 2, ChunkID: 3, PrevID: 4, BlockSize: 500, NChunks: 10, Height: 6}
	pkt := EncodeDatagram(TypeBroadcast, c.Encode())
	typ, body, err := DecodeDatagram(pkt)
	if err != nil {
		t.Fatalf("DecodeDatagram: %v", err)
	}
	if typ != TypeBroadcast {
		t.Fatalf("type = %d, want %d", typ, TypeBroadcast)
	}
	got, err := DecodeChunk(body)
	if err != nil || got != c {
		t.Fatalf("got %+v, err %v, want %+v", got, err, c)
	}
}

func TestNodesRoundTrip(t *testing.T) {
	n := Nodes{
		Sender: 1, Target: 2,
		Contacts: []NodeContact{
			{NodeID: 100, Addr: NodeAddr{10, 0, 0, 1}},
			{NodeID: 200, Addr: NodeAddr{10, 0, 0, 2}},
		},
	}
	got, err := DecodeNodes(n.Encode())
	if err != nil {
		t.Fatalf("DecodeNodes: %v", err)
	}
	if got.Sender != n.Sender || got.Target != n.Target || len(got.Contacts) != 2 {
		t.Fatalf("got %+v, want %+v", got, n)
	}
	if got.Contacts[1].NodeID != 200 || got.Contacts[1].Addr != (NodeAddr{10, 0, 0, 2}) {
		t.Fatalf("contact[1] = %+v", got.Contacts[1])
	}
}

func TestRequestInformRoundTrip(t *testing.T) {
	m := RequestInform{Sender: 5, BlockID: 9}
	got, err := DecodeRequestInform(m.Encode())
	if err != nil || got != m {
		t.Fatalf("got %+v, err %v, want %+v", got, err, m)
	}
}
