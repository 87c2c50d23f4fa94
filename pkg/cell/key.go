package cell

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// EncodeKey and DecodeKey implement the order-preserving tuple encoding
// used as a fragment's on-disk sort key: row and column are zero-escaped
// and double-NUL terminated the way original_source/src/cc/warp/
// tuple_encode.h encodes a string sequence (so nested lexicographic
// order of the byte strings is preserved in the encoding), and the
// timestamp follows as a big-endian int64 with its sign bit flipped
// (so negative timestamps order below positive ones) and then every bit
// inverted, so that ascending byte order of the 8-byte suffix sorts
// descending timestamp — matching the (row ASC, column ASC, timestamp DESC) global order.

// EncodeKey packs (row, column, timestamp) into a single byte string
// whose lexicographic order equals Compare's cell order.
func EncodeKey(row, column []byte, timestamp int64) []byte {
	var buf bytes.Buffer
	writeEscaped(&buf, row)
	writeEscaped(&buf, column)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], ^(uint64(timestamp) ^ (1 << 63)))
	buf.Write(ts[:])
	return buf.Bytes()
}

// DecodeKey reverses EncodeKey.
func DecodeKey(key []byte) (row, column []byte, timestamp int64, err error) {
	rest := key
	row, rest, err = readEscaped(rest)
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "decode row")
	}
	column, rest, err = readEscaped(rest)
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "decode column")
	}
	if len(rest) != 8 {
		return nil, nil, 0, errors.New("decode timestamp: wrong remaining length")
	}
	timestamp = int64(^binary.BigEndian.Uint64(rest) ^ (1 << 63))
	return row, column, timestamp, nil
}

// writeEscaped zero-escapes field (0x00 -> 0x00 0x01) and terminates it
// with a double NUL, the same scheme tuple_encode.h's ZeroEscape uses.
func writeEscaped(buf *bytes.Buffer, field []byte) {
	for _, b := range field {
		if b == 0x00 {
			buf.WriteByte(0x00)
			buf.WriteByte(0x01)
		} else {
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
}

// readEscaped reads one zero-escaped, double-NUL-terminated field off
// the front of data and returns the unescaped field and the remainder.
func readEscaped(data []byte) (field, rest []byte, err error) {
	out := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if data[i] == 0x00 {
			if i+1 >= len(data) {
				return nil, nil, errors.New("truncated escape sequence")
			}
			switch data[i+1] {
			case 0x00:
				return out, data[i+2:], nil
			case 0x01:
				out = append(out, 0x00)
				i += 2
				continue
			default:
				return nil, nil, errors.New("invalid escape sequence")
			}
		}
		out = append(out, data[i])
		i++
	}
	return nil, nil, errors.New("unterminated field")
}
