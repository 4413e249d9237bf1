// Package wal implements C5: the write-ahead log. It is an append-only log
// of physical record changes, CRC32-checked per entry, written by a
// background goroutine fed from a bounded channel that batches by count
// and by elapsed time (spec.md §4.5).
package wal

import (
	"encoding/binary"
	"hash/crc32"
)

// Kind is one of the ten physical WAL entry kinds spec.md §4.5 names.
type Kind uint8

const (
	KindNodeCreate Kind = iota + 1
	KindNodeUpdate
	KindNodeDelete
	KindRelCreate
	KindRelDelete
	KindPropSet
	KindPropRemove
	KindTxBegin
	KindTxCommit
	KindCheckpoint
)

func (k Kind) String() string {
	switch k {
	case KindNodeCreate:
		return "NODE_CREATE"
	case KindNodeUpdate:
		return "NODE_UPDATE"
	case KindNodeDelete:
		return "NODE_DELETE"
	case KindRelCreate:
		return "REL_CREATE"
	case KindRelDelete:
		return "REL_DELETE"
	case KindPropSet:
		return "PROP_SET"
	case KindPropRemove:
		return "PROP_REMOVE"
	case KindTxBegin:
		return "TX_BEGIN"
	case KindTxCommit:
		return "TX_COMMIT"
	case KindCheckpoint:
		return "CHECKPOINT"
	default:
		return "UNKNOWN"
	}
}

// Entry is one physical log record: its own length, LSN, transaction id,
// kind and CRC32 are carried with it (spec.md §4.5). Physical entries are
// keyed to final record contents, not deltas, so replaying an entry twice
// against an already-applied state is a no-op (§4.5 "Recovery is
// idempotent").
type Entry struct {
	LSN     uint64
	TxID    uint64
	Kind    Kind
	Payload []byte
}

// entryHeaderSize is the fixed portion of an on-disk entry ahead of its
// payload: LSN(8) + TxID(8) + Kind(1) + payload length(4).
const entryHeaderSize = 8 + 8 + 1 + 4

// trailerSize is the CRC32 trailer following the payload.
const trailerSize = 4

// frameLenSize is the leading length prefix recording the size of the
// header+payload+trailer that follows, so recovery can skip a corrupt
// entry without having decoded its own length field from inside it.
const frameLenSize = 4

func encodeEntry(e Entry) []byte {
	body := make([]byte, entryHeaderSize+len(e.Payload)+trailerSize)
	binary.LittleEndian.PutUint64(body[0:8], e.LSN)
	binary.LittleEndian.PutUint64(body[8:16], e.TxID)
	body[16] = byte(e.Kind)
	binary.LittleEndian.PutUint32(body[17:21], uint32(len(e.Payload)))
	copy(body[entryHeaderSize:entryHeaderSize+len(e.Payload)], e.Payload)
	sum := crc32.ChecksumIEEE(body[:entryHeaderSize+len(e.Payload)])
	binary.LittleEndian.PutUint32(body[len(body)-trailerSize:], sum)

	framed := make([]byte, frameLenSize+len(body))
	binary.LittleEndian.PutUint32(framed[0:frameLenSize], uint32(len(body)))
	copy(framed[frameLenSize:], body)
	return framed
}

// decodeEntry decodes the body (post frame-length prefix) of one entry,
// reporting whether its CRC32 trailer validates.
func decodeEntry(body []byte) (Entry, bool) {
	if len(body) < entryHeaderSize+trailerSize {
		return Entry{}, false
	}
	lsn := binary.LittleEndian.Uint64(body[0:8])
	txID := binary.LittleEndian.Uint64(body[8:16])
	kind := Kind(body[16])
	plen := binary.LittleEndian.Uint32(body[17:21])
	if uint32(len(body)) != uint32(entryHeaderSize)+plen+uint32(trailerSize) {
		return Entry{}, false
	}
	payload := body[entryHeaderSize : entryHeaderSize+plen]
	wantSum := binary.LittleEndian.Uint32(body[len(body)-trailerSize:])
	gotSum := crc32.ChecksumIEEE(body[:entryHeaderSize+int(plen)])
	if wantSum != gotSum {
		return Entry{}, false
	}
	return Entry{LSN: lsn, TxID: txID, Kind: kind, Payload: payload}, true
}
