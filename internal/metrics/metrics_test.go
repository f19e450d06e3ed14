package metrics

import (
	"net/http"
	"testing"
	"time"
)

func TestServerServesMetrics(t *testing.T) {
	reg := New()
	reg.BlocksMined.Add(3)

	srv := NewServer("127.0.0.1:0", reg)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer srv.Stop()

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	time.Sleep(time.Millisecond) // let the listener actually close
}
