package propstore

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// None is the sentinel property_head / next-cell pointer value for "no
// properties" / "end of chain".
const None uint64 = ^uint64(0)

// Store is an append-only log of property cells shared by every node and
// relationship in a database directory. A property_head is a byte offset
// into this file; cells are immutable once written except for their
// 8-byte next pointer, which Set/Remove patch in place to splice the
// chain, per spec.md §4.4 ("Updates replace or append; removal unlinks").
//
// Space abandoned by replaced/removed cells is not reclaimed: the file
// only grows, and Engine.Compact does not touch the property store.
type Store struct {
	mu   sync.Mutex
	file *os.File
	size int64
}

// Open opens (creating if necessary) the property cell log at path.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "open property store %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "stat property store %s", path)
	}
	return &Store{file: f, size: info.Size()}, nil
}

// Close flushes and closes the backing file.
func (s *Store) Close() error {
	if err := s.file.Sync(); err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "sync property store")
	}
	return s.file.Close()
}

// Flush fsyncs the backing file (used by checkpoint/commit durability
// paths alongside record.Store.FlushAll and wal.WAL).
func (s *Store) Flush() error {
	if err := s.file.Sync(); err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "sync property store")
	}
	return nil
}

func (s *Store) append(buf []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	off := s.size
	if _, err := s.file.WriteAt(buf, off); err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindIO, err, "append property cell")
	}
	s.size += int64(len(buf))
	return uint64(off), nil
}

// patchNext rewrites the 8-byte next pointer of the cell at offset off.
func (s *Store) patchNext(off uint64, next uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], next)
	if _, err := s.file.WriteAt(b[:], int64(off)); err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "relink property cell at %d", off)
	}
	return nil
}

// cellAt reads the full cell (header + payload) at offset off.
func (s *Store) cellAt(off uint64) (next uint64, keyID uint32, kind Kind, payload []byte, err error) {
	hdr := make([]byte, cellHeaderSize)
	if _, err = s.file.ReadAt(hdr, int64(off)); err != nil {
		return 0, 0, 0, nil, nexuserr.Wrap(nexuserr.KindIO, err, "read property cell header at %d", off)
	}
	var plen uint32
	next, keyID, kind, plen = decodeCellHeader(hdr)
	payload = make([]byte, plen)
	if plen > 0 {
		if _, err = s.file.ReadAt(payload, int64(off)+cellHeaderSize); err != nil {
			return 0, 0, 0, nil, nexuserr.Wrap(nexuserr.KindIO, err, "read property cell payload at %d", off)
		}
	}
	return next, keyID, kind, payload, nil
}

// Get walks head's chain looking for keyID, returning its value and true
// if present.
func (s *Store) Get(head uint64, keyID uint32) (Value, bool, error) {
	cur := head
	for cur != None {
		next, kid, kind, payload, err := s.cellAt(cur)
		if err != nil {
			return Value{}, false, err
		}
		if kid == keyID {
			v, err := decodeCellPayload(kind, payload)
			if err != nil {
				return Value{}, false, err
			}
			return v, true, nil
		}
		cur = next
	}
	return Value{}, false, nil
}

// All materializes every live (keyID -> Value) pair reachable from head,
// for Project and RETURN * style consumption by the executor.
func (s *Store) All(head uint64) (map[uint32]Value, error) {
	out := map[uint32]Value{}
	cur := head
	for cur != None {
		next, kid, kind, payload, err := s.cellAt(cur)
		if err != nil {
			return nil, err
		}
		if _, seen := out[kid]; !seen {
			v, err := decodeCellPayload(kind, payload)
			if err != nil {
				return nil, err
			}
			out[kid] = v
		}
		cur = next
	}
	return out, nil
}

// Set stores value for keyID, returning the (possibly unchanged) new head
// of the chain. If keyID already appears in the chain its entry is
// replaced in place (the predecessor's next pointer is patched past the
// old cell to a freshly appended one carrying the old cell's former
// successor); otherwise a new cell is prepended.
func (s *Store) Set(head uint64, keyID uint32, value Value) (uint64, error) {
	predOff, found, foundNext, err := s.findPredecessor(head, keyID)
	if err != nil {
		return 0, err
	}
	if !found {
		buf, err := encodeCell(head, keyID, value)
		if err != nil {
			return 0, err
		}
		return s.append(buf)
	}
	buf, err := encodeCell(foundNext, keyID, value)
	if err != nil {
		return 0, err
	}
	newOff, err := s.append(buf)
	if err != nil {
		return 0, err
	}
	if predOff == None {
		return newOff, nil
	}
	if err := s.patchNext(predOff, newOff); err != nil {
		return 0, err
	}
	return head, nil
}

// Remove unlinks keyID from the chain rooted at head, returning the new
// head and whether the key was present.
func (s *Store) Remove(head uint64, keyID uint32) (uint64, bool, error) {
	predOff, found, foundNext, err := s.findPredecessor(head, keyID)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return head, false, nil
	}
	if predOff == None {
		return foundNext, true, nil
	}
	if err := s.patchNext(predOff, foundNext); err != nil {
		return 0, false, err
	}
	return head, true, nil
}

// findPredecessor locates the cell for keyID in head's chain, returning
// the offset of the *cell before it* (None if keyID is the head cell
// itself), whether it was found, and the offset the found cell's next
// pointer pointed to.
func (s *Store) findPredecessor(head uint64, keyID uint32) (predOff uint64, found bool, foundNext uint64, err error) {
	predOff = None
	cur := head
	for cur != None {
		next, kid, _, _, err := s.cellAt(cur)
		if err != nil {
			return 0, false, 0, err
		}
		if kid == keyID {
			return predOff, true, next, nil
		}
		predOff = cur
		cur = next
	}
	return None, false, 0, nil
}
