// Package chain implements the per-peer blockchain: a DAG of blocks with
// deferred height inference and longest-chain tip tracking (spec.md §3,
// §4.3). Every peer owns an independent Blockchain — there is no shared
// mutable chain state at the core level (spec.md §5).
package chain

// GenesisID is the reserved block ID denoting "no ancestor" — the
// genesis block's own PrevID, and the sentinel every peer's Blockchain is
// seeded with.
const GenesisID uint64 = 0

// Block is an immutable unit of replicated data, save for the derived
// Height field, which transitions monotonically 0 -> positive exactly
// once (spec.md §3).
//
// Height == 0 is ambiguous by design (spec.md §3): it means the genesis
// block, a freshly-minted block whose height hasn't been inferred yet, or
// a block whose inference was postponed pending its ancestor. Callers
// that need to distinguish these cases hold additional context (e.g. "is
// this ID == GenesisID") rather than relying on Height alone.
type Block struct {
	ID     uint64
	PrevID uint64
	Size   uint32
	Height uint32
}

// NewBlock returns a freshly-minted, not-yet-height-resolved block.
func NewBlock(id, prevID uint64, size uint32) Block {
	return Block{ID: id, PrevID: prevID, Size: size}
}

// Genesis returns the canonical genesis block: ID 0, height 0, size 0
// (invariant I1, spec.md §3).
func Genesis() Block {
	return Block{ID: GenesisID, PrevID: GenesisID, Size: 0, Height: 0}
}
