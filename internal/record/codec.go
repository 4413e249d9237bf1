package record

import "encoding/binary"

func putU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getU64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }
func putU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func getU32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }
func putU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func getU16(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }

func encodeNode(n *Node, buf []byte) {
	putU64(buf[0:8], n.NodeID)
	putU64(buf[8:16], n.LabelBits)
	putU64(buf[16:24], n.FirstRelID)
	putU64(buf[24:32], n.PropertyHead)
	putU64(buf[32:40], n.CreatedEpoch)
	putU64(buf[40:48], n.DeletedEpoch)
	putU16(buf[48:50], n.Flags)
}

func decodeNode(buf []byte) *Node {
	return &Node{
		NodeID:       getU64(buf[0:8]),
		LabelBits:    getU64(buf[8:16]),
		FirstRelID:   getU64(buf[16:24]),
		PropertyHead: getU64(buf[24:32]),
		CreatedEpoch: getU64(buf[32:40]),
		DeletedEpoch: getU64(buf[40:48]),
		Flags:        getU16(buf[48:50]),
	}
}

func encodeRel(r *Relationship, buf []byte) {
	putU64(buf[0:8], r.RelID)
	putU32(buf[8:12], r.TypeID)
	putU64(buf[12:20], r.SrcNodeID)
	putU64(buf[20:28], r.DstNodeID)
	putU64(buf[28:36], r.PrevSrc)
	putU64(buf[36:44], r.NextSrc)
	putU64(buf[44:52], r.PrevDst)
	putU64(buf[52:60], r.NextDst)
	putU16(buf[60:62], r.Flags)
	// PropertyHead/CreatedEpoch/DeletedEpoch spill past the 64-byte slot
	// budget at uint64 width; see types.go's note on the byte-budget
	// deviation. They are stored in a second slot-width region below.
}

// relExtra holds the fields that do not fit in the primary 64-byte slot at
// full uint64 width. It is appended as a second fixed-width region so the
// relationship store can still address records by a single slot index
// (slot N's primary record lives at offset N*RelSize in one file, its
// extra fields at the mirrored offset in a second file), keeping "an ID is
// a direct slot offset" (spec.md §4.3) true for both.
type relExtra struct {
	PropertyHead uint64
	CreatedEpoch uint64
	DeletedEpoch uint64
}

const RelExtraSize = 24

func encodeRelExtra(r *Relationship, buf []byte) {
	putU64(buf[0:8], r.PropertyHead)
	putU64(buf[8:16], r.CreatedEpoch)
	putU64(buf[16:24], r.DeletedEpoch)
}

func decodeRelExtra(buf []byte) relExtra {
	return relExtra{
		PropertyHead: getU64(buf[0:8]),
		CreatedEpoch: getU64(buf[8:16]),
		DeletedEpoch: getU64(buf[16:24]),
	}
}

// EncodeNode serializes n into its fixed NodeSize wire form, exported so
// the write-ahead log can carry a node's final contents verbatim (spec.md
// §4.5 "physical entries are keyed to final record contents").
func EncodeNode(n *Node) []byte {
	buf := make([]byte, NodeSize)
	encodeNode(n, buf)
	return buf
}

// DecodeNode is EncodeNode's inverse, used by WAL replay.
func DecodeNode(buf []byte) *Node { return decodeNode(buf) }

// EncodeRelationship serializes r into its combined primary+extra wire
// form (RelSize+RelExtraSize bytes) for the same WAL-payload purpose as
// EncodeNode.
func EncodeRelationship(r *Relationship) []byte {
	buf := make([]byte, RelSize+RelExtraSize)
	encodeRel(r, buf[:RelSize])
	encodeRelExtra(r, buf[RelSize:])
	return buf
}

// DecodeRelationship is EncodeRelationship's inverse.
func DecodeRelationship(buf []byte) *Relationship {
	return decodeRel(buf[:RelSize], decodeRelExtra(buf[RelSize:]))
}

func decodeRel(buf []byte, extra relExtra) *Relationship {
	return &Relationship{
		RelID:        getU64(buf[0:8]),
		TypeID:       getU32(buf[8:12]),
		SrcNodeID:    getU64(buf[12:20]),
		DstNodeID:    getU64(buf[20:28]),
		PrevSrc:      getU64(buf[28:36]),
		NextSrc:      getU64(buf[36:44]),
		PrevDst:      getU64(buf[44:52]),
		NextDst:      getU64(buf[52:60]),
		Flags:        getU16(buf[60:62]),
		PropertyHead: extra.PropertyHead,
		CreatedEpoch: extra.CreatedEpoch,
		DeletedEpoch: extra.DeletedEpoch,
	}
}
