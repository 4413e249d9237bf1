package wal

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

type frame struct {
	entry Entry
	valid bool
}

// scanFrames reads every length-prefixed frame from the start of f,
// validating each entry's CRC32. A truncated trailing frame (a torn write
// from a crash mid-append) ends the scan without error, since everything
// before it is still a well-formed prefix of the log.
func scanFrames(f *os.File) ([]frame, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "seek WAL segment")
	}
	info, err := f.Stat()
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "stat WAL segment")
	}
	size := info.Size()

	var frames []frame
	var off int64
	lenBuf := make([]byte, frameLenSize)
	for off+frameLenSize <= size {
		if _, err := f.ReadAt(lenBuf, off); err != nil {
			break
		}
		bodyLen := int64(binary.LittleEndian.Uint32(lenBuf))
		if bodyLen <= 0 || off+frameLenSize+bodyLen > size {
			break // torn write: the rest of the file is not a complete frame
		}
		body := make([]byte, bodyLen)
		if _, err := f.ReadAt(body, off+frameLenSize); err != nil {
			break
		}
		e, ok := decodeEntry(body)
		frames = append(frames, frame{entry: e, valid: ok})
		off += frameLenSize + bodyLen
	}
	return frames, nil
}

// scanEntries returns only the CRC-valid entries, in file order.
func scanEntries(f *os.File, _ bool) ([]Entry, error) {
	frames, err := scanFrames(f)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(frames))
	for _, fr := range frames {
		if fr.valid {
			out = append(out, fr.entry)
		}
	}
	return out, nil
}

// Replay applies every physical entry recorded since the last CHECKPOINT
// whose transaction reached TX_COMMIT, in log order, skipping any entry
// that fails CRC validation or belongs to a transaction that never
// committed (spec.md §4.5 "Recovery"). apply is called once per physical
// mutation entry (NODE_*/REL_*/PROP_*), never for TX_BEGIN, TX_COMMIT or
// CHECKPOINT bookkeeping entries.
//
// Because physical entries are keyed to final record contents rather than
// deltas, applying this same log twice from the same checkpoint is a
// no-op on a store that already reflects it (spec.md §4.5 "Recovery is
// idempotent", §8 "WAL idempotence").
func Replay(path string, apply func(Entry) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "open WAL segment %s for replay", path)
	}
	defer f.Close()

	frames, err := scanFrames(f)
	if err != nil {
		return err
	}

	start := 0
	for i, fr := range frames {
		if fr.valid && fr.entry.Kind == KindCheckpoint {
			start = i + 1
		}
	}

	committed := make(map[uint64]bool)
	for _, fr := range frames[start:] {
		if fr.valid && fr.entry.Kind == KindTxCommit {
			committed[fr.entry.TxID] = true
		}
	}

	for _, fr := range frames[start:] {
		if !fr.valid {
			continue
		}
		e := fr.entry
		switch e.Kind {
		case KindTxBegin, KindTxCommit, KindCheckpoint:
			continue
		}
		if !committed[e.TxID] {
			continue
		}
		if err := apply(e); err != nil {
			return err
		}
	}
	return nil
}
