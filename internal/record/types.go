// Package record implements C3: RecordStore. It holds one fixed-width,
// memory-mapped, growable record file for nodes and one for relationships
// (spec.md §4.3), addressed directly by slot index with no indirection
// layer, and performs the doubly-linked adjacency splicing described in
// spec.md §3 and §4.3 so Invariant 1 (every live relationship is reachable
// from both endpoints) is maintained locally to the store.
package record

// None is the NONE sentinel used for absent ids (first_rel_id,
// property_head, and adjacency pointers).
const None uint64 = ^uint64(0)

// NodeSize and RelSize are this implementation's fixed record widths.
// spec.md's budget of "≤64 bytes" for a node and "≤48 bytes" for a
// relationship comes from a reference implementation that bit-packs 32-bit
// ids; encoding the same field set with Go's plain fixed-width integers
// does not fit a relationship in 48 bytes without inventing a bespoke
// bit-packed wire format. This implementation keeps every field spec.md
// §3 names, at a uniform 64-byte slot width for both record kinds, with a
// relationship's PropertyHead, CreatedEpoch and DeletedEpoch held in a
// 24-byte companion slot in a second file (see codec.go; documented as an
// open-question decision in DESIGN.md) rather than silently dropping a
// field to hit the byte count.
const (
	NodeSize = 64
	RelSize  = 64
)

// Node is the in-memory form of a node record (spec.md §3 "Node").
type Node struct {
	NodeID       uint64
	LabelBits    uint64
	FirstRelID   uint64
	PropertyHead uint64
	CreatedEpoch uint64
	DeletedEpoch uint64
	Flags        uint16
}

// Live reports whether the node is visible to any reader (has not been
// tombstoned). Full epoch-aware visibility is TransactionManager's job
// (spec.md §4.6); this is the cheap "never deleted" check record
// iteration uses to skip known-dead slots.
func (n *Node) Live() bool { return n.DeletedEpoch == 0 }

// HasLabel reports whether bit is set in the node's 64-bit label bitmap.
// Label ids ≥ 64 never appear here; they are the multi-label side store's
// responsibility (spec.md §9).
func (n *Node) HasLabel(labelID uint32) bool {
	if labelID >= 64 {
		return false
	}
	return n.LabelBits&(1<<uint(labelID)) != 0
}

// SetLabel sets or clears bit labelID in the node's bitmap. Labels ≥ 64 are
// a no-op here by design; callers route those through the multi-label side
// store instead.
func (n *Node) SetLabel(labelID uint32, on bool) {
	if labelID >= 64 {
		return
	}
	if on {
		n.LabelBits |= 1 << uint(labelID)
	} else {
		n.LabelBits &^= 1 << uint(labelID)
	}
}

// Relationship is the in-memory form of a relationship record (spec.md §3
// "Relationship"). Direction is an attribute of the record (SrcNodeID /
// DstNodeID), never of storage location.
type Relationship struct {
	RelID        uint64
	TypeID       uint32
	SrcNodeID    uint64
	DstNodeID    uint64
	PrevSrc      uint64
	NextSrc      uint64
	PrevDst      uint64
	NextDst      uint64
	PropertyHead uint64
	CreatedEpoch uint64
	DeletedEpoch uint64
	Flags        uint16
}

// Live reports whether the relationship has not been tombstoned.
func (r *Relationship) Live() bool { return r.DeletedEpoch == 0 }

// SelfLoop reports whether the relationship's two endpoints are the same
// node, in which case both pointer pairs thread the single node's list
// (spec.md §3 "unless it is self-referential").
func (r *Relationship) SelfLoop() bool { return r.SrcNodeID == r.DstNodeID }

// srcSide reports whether nodeID should walk this relationship's adjacency
// via the *Src pointers. A self-loop always uses the Src pointers; any
// other node uses Src pointers only when it is literally the src endpoint.
func (r *Relationship) srcSide(nodeID uint64) bool {
	return r.SrcNodeID == nodeID
}

// NextFor returns the next relationship id in nodeID's adjacency list
// after r, or None at the end of the list.
func (r *Relationship) NextFor(nodeID uint64) uint64 {
	if r.srcSide(nodeID) {
		return r.NextSrc
	}
	return r.NextDst
}

// PrevFor returns the previous relationship id in nodeID's adjacency list
// before r, or None at the head of the list.
func (r *Relationship) PrevFor(nodeID uint64) uint64 {
	if r.srcSide(nodeID) {
		return r.PrevSrc
	}
	return r.PrevDst
}

func (r *Relationship) setNextFor(nodeID uint64, v uint64) {
	if r.srcSide(nodeID) {
		r.NextSrc = v
	} else {
		r.NextDst = v
	}
}

func (r *Relationship) setPrevFor(nodeID uint64, v uint64) {
	if r.srcSide(nodeID) {
		r.PrevSrc = v
	} else {
		r.PrevDst = v
	}
}

// OtherEndpoint returns the endpoint of r that is not nodeID (nodeID
// itself, for a self-loop).
func (r *Relationship) OtherEndpoint(nodeID uint64) uint64 {
	if r.SrcNodeID == nodeID {
		return r.DstNodeID
	}
	return r.SrcNodeID
}
