// Package kadcast implements the Kademlia-structured broadcast overlay
// (spec.md §4.6): XOR-distance k-buckets, iterative node lookup, and a
// recursive bucket-tree chunk broadcast over unreliable datagrams.
package kadcast

import (
	"math/bits"

	"github.com/bnssim/bns/internal/fabric"
)

// IDLen is the bit width of a node id — one k-bucket per distance shell.
const IDLen = 64

// NodeID is a peer's Kademlia identity, distinct from its fabric.PeerID
// network address (spec.md §4.6: "each peer draws a uniform node_id: u64
// at startup").
type NodeID uint64

// Distance is plain XOR distance.
func Distance(a, b NodeID) uint64 { return uint64(a) ^ uint64(b) }

// BucketIndex returns the k-bucket a contact at the given distance from
// self belongs in: bucket i holds distances in [2^i, 2^(i+1)). Distance 0
// (self) has no bucket and callers must not look it up.
func BucketIndex(d uint64) int {
	return bits.Len64(d) - 1
}

// Contact is one routing-table entry.
type Contact struct {
	Addr   fabric.PeerID
	NodeID NodeID
}

// RoutingTable holds IDLen k-buckets, each an LRU-ordered, k-bounded list
// of contacts (spec.md §3).
type RoutingTable struct {
	self    NodeID
	k       int
	buckets [IDLen][]Contact
}

// NewRoutingTable creates an empty table for a node identified by self,
// with each bucket bounded to k entries.
func NewRoutingTable(self NodeID, k int) *RoutingTable {
	return &RoutingTable{self: self, k: k}
}

// Observe records contact as seen. On a hit (already present) it moves to
// the tail (most-recently-seen); on a miss it appends to the tail,
// evicting the head (least-recently-seen) if the bucket is full
// (spec.md §3's "LRU semantics: on hit, move to tail; on overflow, evict
// head").
func (rt *RoutingTable) Observe(c Contact) {
	if c.NodeID == rt.self {
		return
	}
	idx := BucketIndex(Distance(rt.self, c.NodeID))
	bucket := rt.buckets[idx]

	for i, existing := range bucket {
		if existing.NodeID == c.NodeID {
			bucket = append(bucket[:i], bucket[i+1:]...)
			bucket = append(bucket, c)
			rt.buckets[idx] = bucket
			return
		}
	}

	bucket = append(bucket, c)
	if len(bucket) > rt.k {
		bucket = bucket[1:]
	}
	rt.buckets[idx] = bucket
}

// Bucket returns a copy of bucket i's contacts, oldest first.
func (rt *RoutingTable) Bucket(i int) []Contact {
	out := make([]Contact, len(rt.buckets[i]))
	copy(out, rt.buckets[i])
	return out
}

// Closest returns up to n contacts across all buckets sorted by ascending
// distance to target — used to seed FINDNODE replies and node lookups.
func (rt *RoutingTable) Closest(target NodeID, n int) []Contact {
	var all []Contact
	for i := range rt.buckets {
		all = append(all, rt.buckets[i]...)
	}
	// Simple insertion sort by distance: routing tables stay small (k ×
	// IDLen at most), so an O(n^2) sort is not worth a dependency.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && Distance(target, all[j].NodeID) < Distance(target, all[j-1].NodeID); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if n < len(all) {
		all = all[:n]
	}
	return all
}
