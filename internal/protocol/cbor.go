package protocol

import (
	"encoding/binary"
)

// Minimal CBOR decoder covering the grammar attestation objects and COSE
// keys actually use: unsigned/negative integers, byte strings, text strings,
// arrays, and maps, with the short, 1-byte, 2-byte, and 4-byte length forms.
// Input is attacker-controlled, so every read is bounds-checked against the
// remaining buffer and any construct outside the subset is a decode error.

const (
	cborUnsigned = 0
	cborNegative = 1
	cborBytes    = 2
	cborText     = 3
	cborArray    = 4
	cborMap      = 5
)

// Attestation objects nest at most a few levels (top map, attStmt map, x5c
// array); anything deeper is garbage.
const cborMaxDepth = 8

type cborReader struct {
	buf []byte
	off int
}

func (r *cborReader) remaining() int {
	return len(r.buf) - r.off
}

func (r *cborReader) readByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, decodeErr("truncated input at offset %d", r.off)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *cborReader) readSlice(n uint64) ([]byte, error) {
	if n > uint64(r.remaining()) {
		return nil, decodeErr("declared length %d exceeds %d remaining bytes", n, r.remaining())
	}
	s := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return s, nil
}

// readHead decodes an item's initial byte plus its length/value argument.
func (r *cborReader) readHead() (major byte, arg uint64, err error) {
	b, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}
	major = b >> 5
	info := b & 0x1f
	switch {
	case info < 24:
		arg = uint64(info)
	case info == 24:
		v, err := r.readSlice(1)
		if err != nil {
			return 0, 0, err
		}
		arg = uint64(v[0])
	case info == 25:
		v, err := r.readSlice(2)
		if err != nil {
			return 0, 0, err
		}
		arg = uint64(binary.BigEndian.Uint16(v))
	case info == 26:
		v, err := r.readSlice(4)
		if err != nil {
			return 0, 0, err
		}
		arg = uint64(binary.BigEndian.Uint32(v))
	default:
		// 8-byte and indefinite-length forms never appear in
		// attestation objects.
		return 0, 0, decodeErr("unsupported additional info %d", info)
	}
	return major, arg, nil
}

// readValue decodes one item. Integers come back as int64, byte strings as
// []byte, text strings as string, arrays as []any, maps as map[any]any.
func (r *cborReader) readValue(depth int) (any, error) {
	if depth > cborMaxDepth {
		return nil, decodeErr("nesting exceeds depth %d", cborMaxDepth)
	}
	major, arg, err := r.readHead()
	if err != nil {
		return nil, err
	}
	switch major {
	case cborUnsigned:
		if arg > 1<<62 {
			return nil, decodeErr("integer out of range")
		}
		return int64(arg), nil
	case cborNegative:
		if arg > 1<<62 {
			return nil, decodeErr("integer out of range")
		}
		return -1 - int64(arg), nil
	case cborBytes:
		b, err := r.readSlice(arg)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case cborText:
		b, err := r.readSlice(arg)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case cborArray:
		// Every element takes at least one byte, so a count beyond the
		// remaining bytes can never complete.
		if arg > uint64(r.remaining()) {
			return nil, decodeErr("array length %d exceeds input", arg)
		}
		items := make([]any, 0, arg)
		for i := uint64(0); i < arg; i++ {
			item, err := r.readValue(depth + 1)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case cborMap:
		if arg > uint64(r.remaining())/2 {
			return nil, decodeErr("map length %d exceeds input", arg)
		}
		m := make(map[any]any, arg)
		for i := uint64(0); i < arg; i++ {
			key, err := r.readValue(depth + 1)
			if err != nil {
				return nil, err
			}
			switch key.(type) {
			case int64, string:
			default:
				return nil, decodeErr("unsupported map key type")
			}
			val, err := r.readValue(depth + 1)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil
	default:
		return nil, decodeErr("unsupported major type %d", major)
	}
}

// AttestationObject is the decoded top-level CBOR structure an authenticator
// returns at registration.
type AttestationObject struct {
	Format   string
	AuthData []byte
	AttStmt  map[string]any
}

// DecodeAttestationObject decodes the CBOR attestation object map. Trailing
// bytes after the map are rejected.
func DecodeAttestationObject(raw []byte) (*AttestationObject, error) {
	r := &cborReader{buf: raw}
	v, err := r.readValue(0)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, decodeErr("%d trailing bytes after attestation object", r.remaining())
	}
	top, ok := v.(map[any]any)
	if !ok {
		return nil, decodeErr("attestation object is not a map")
	}

	obj := &AttestationObject{}
	if obj.Format, ok = top["fmt"].(string); !ok {
		return nil, decodeErr("attestation object missing fmt")
	}
	if obj.AuthData, ok = top["authData"].([]byte); !ok {
		return nil, decodeErr("attestation object missing authData")
	}
	stmt, ok := top["attStmt"].(map[any]any)
	if !ok {
		return nil, decodeErr("attestation object missing attStmt")
	}
	obj.AttStmt = make(map[string]any, len(stmt))
	for k, val := range stmt {
		ks, ok := k.(string)
		if !ok {
			return nil, decodeErr("attStmt key is not a string")
		}
		obj.AttStmt[ks] = val
	}
	return obj, nil
}
