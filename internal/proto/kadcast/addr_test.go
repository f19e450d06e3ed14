package kadcast

import (
	"testing"

	"github.com/bnssim/bns/internal/fabric"
)

func TestAddrRoundTrip(t *testing.T) {
	id := fabric.PeerID("peer-17")
	if got := wireToAddr(addrToWire(id)); got != id {
		t.Fatalf("round trip = %q, want %q", got, id)
	}
}
