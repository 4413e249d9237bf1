package propstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// cellHeaderSize is the fixed-width header every cell carries ahead of its
// variable-length payload: an 8-byte next-cell pointer (so relinking a
// chain is an in-place 8-byte patch, never a full cell rewrite), a 4-byte
// key id, a 1-byte type tag and a 4-byte payload length.
const cellHeaderSize = 8 + 4 + 1 + 4

func encodeCell(next uint64, keyID uint32, v Value) ([]byte, error) {
	var payload bytes.Buffer
	if err := encodeValue(&payload, v); err != nil {
		return nil, err
	}
	buf := make([]byte, cellHeaderSize+payload.Len())
	binary.LittleEndian.PutUint64(buf[0:8], next)
	binary.LittleEndian.PutUint32(buf[8:12], keyID)
	buf[12] = byte(v.Kind)
	binary.LittleEndian.PutUint32(buf[13:17], uint32(payload.Len()))
	copy(buf[cellHeaderSize:], payload.Bytes())
	return buf, nil
}

func decodeCellHeader(buf []byte) (next uint64, keyID uint32, kind Kind, payloadLen uint32) {
	next = binary.LittleEndian.Uint64(buf[0:8])
	keyID = binary.LittleEndian.Uint32(buf[8:12])
	kind = Kind(buf[12])
	payloadLen = binary.LittleEndian.Uint32(buf[13:17])
	return
}

func decodeCellPayload(kind Kind, payload []byte) (Value, error) {
	return decodeValue(kind, bytes.NewReader(payload))
}

// encodeValue serializes v with a length-prefix discipline so vector values
// carry their own dimensionality and scalar values carry their own length,
// meaning KNN can decode a vector cell without ever consulting the catalog
// (spec.md §4.4).
func encodeValue(w *bytes.Buffer, v Value) error {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		if v.Bool {
			w.WriteByte(1)
		} else {
			w.WriteByte(0)
		}
		return nil
	case KindInt:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.Int))
		w.Write(b[:])
		return nil
	case KindFloat:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.Float))
		w.Write(b[:])
		return nil
	case KindString:
		writeLenPrefixed(w, []byte(v.Str))
		return nil
	case KindVector:
		var dim [4]byte
		binary.LittleEndian.PutUint32(dim[:], uint32(len(v.Vector)))
		w.Write(dim[:])
		for _, f := range v.Vector {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
			w.Write(b[:])
		}
		return nil
	case KindList:
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(v.List)))
		w.Write(n[:])
		for _, elem := range v.List {
			w.WriteByte(byte(elem.Kind))
			var elemBuf bytes.Buffer
			if err := encodeValue(&elemBuf, elem); err != nil {
				return err
			}
			writeLenPrefixed(w, elemBuf.Bytes())
		}
		return nil
	case KindMap:
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(v.Map)))
		w.Write(n[:])
		for k, mv := range v.Map {
			writeLenPrefixed(w, []byte(k))
			w.WriteByte(byte(mv.Kind))
			var valBuf bytes.Buffer
			if err := encodeValue(&valBuf, mv); err != nil {
				return err
			}
			writeLenPrefixed(w, valBuf.Bytes())
		}
		return nil
	default:
		return fmt.Errorf("propstore: unknown value kind %d", v.Kind)
	}
}

func writeLenPrefixed(w *bytes.Buffer, b []byte) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	w.Write(n[:])
	w.Write(b)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := r.Read(n[:]); err != nil {
		return nil, err
	}
	ln := binary.LittleEndian.Uint32(n[:])
	b := make([]byte, ln)
	if ln > 0 {
		if _, err := r.Read(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func decodeValue(kind Kind, r *bytes.Reader) (Value, error) {
	switch kind {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return Value{}, err
		}
		return Bool(b != 0), nil
	case KindInt:
		var b [8]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		return Int(int64(binary.LittleEndian.Uint64(b[:]))), nil
	case KindFloat:
		var b [8]byte
		if _, err := r.Read(b[:]); err != nil {
			return Value{}, err
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(b[:]))), nil
	case KindString:
		b, err := readLenPrefixed(r)
		if err != nil {
			return Value{}, err
		}
		return Str(string(b)), nil
	case KindVector:
		var dim [4]byte
		if _, err := r.Read(dim[:]); err != nil {
			return Value{}, err
		}
		n := binary.LittleEndian.Uint32(dim[:])
		vec := make([]float64, n)
		for i := range vec {
			var b [8]byte
			if _, err := r.Read(b[:]); err != nil {
				return Value{}, err
			}
			vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
		}
		return Vector(vec), nil
	case KindList:
		var n [4]byte
		if _, err := r.Read(n[:]); err != nil {
			return Value{}, err
		}
		count := binary.LittleEndian.Uint32(n[:])
		list := make([]Value, count)
		for i := range list {
			kb, err := r.ReadByte()
			if err != nil {
				return Value{}, err
			}
			raw, err := readLenPrefixed(r)
			if err != nil {
				return Value{}, err
			}
			ev, err := decodeValue(Kind(kb), bytes.NewReader(raw))
			if err != nil {
				return Value{}, err
			}
			list[i] = ev
		}
		return List(list), nil
	case KindMap:
		var n [4]byte
		if _, err := r.Read(n[:]); err != nil {
			return Value{}, err
		}
		count := binary.LittleEndian.Uint32(n[:])
		m := make(map[string]Value, count)
		for i := uint32(0); i < count; i++ {
			keyBytes, err := readLenPrefixed(r)
			if err != nil {
				return Value{}, err
			}
			kb, err := r.ReadByte()
			if err != nil {
				return Value{}, err
			}
			raw, err := readLenPrefixed(r)
			if err != nil {
				return Value{}, err
			}
			mv, err := decodeValue(Kind(kb), bytes.NewReader(raw))
			if err != nil {
				return Value{}, err
			}
			m[string(keyBytes)] = mv
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("propstore: unknown value kind %d", kind)
	}
}
