package cell

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	cases := []struct {
		row, col []byte
		ts       int64
	}{
		{[]byte("a"), []byte("x"), 1},
		{[]byte(""), []byte(""), 0},
		{[]byte("row\x00with\x00nul"), []byte("col"), -5},
		{[]byte("z"), []byte("family:qualifier"), 1 << 40},
	}
	for _, c := range cases {
		enc := EncodeKey(c.row, c.col, c.ts)
		row, col, ts, err := DecodeKey(enc)
		require.NoError(t, err)
		require.Equal(t, c.row, row)
		require.Equal(t, c.col, col)
		require.Equal(t, c.ts, ts)
	}
}

// TestKeyOrderMatchesCellOrder is the round-trip law from the testable
// properties: lexicographic order of encodings matches the order of the
// underlying (row, column, ¬timestamp) tuples.
func TestKeyOrderMatchesCellOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("encoding order matches cell order", prop.ForAll(
		func(r1, c1 string, t1 int64, r2, c2 string, t2 int64) bool {
			a := Cell{Row: []byte(r1), Column: []byte(c1), Timestamp: t1}
			b := Cell{Row: []byte(r2), Column: []byte(c2), Timestamp: t2}

			cellCmp := Compare(a, b)
			keyCmp := bytes.Compare(
				EncodeKey(a.Row, a.Column, a.Timestamp),
				EncodeKey(b.Row, b.Column, b.Timestamp),
			)

			if cellCmp < 0 {
				return keyCmp < 0
			}
			if cellCmp > 0 {
				return keyCmp > 0
			}
			return keyCmp == 0
		},
		gen.AlphaString(), gen.AlphaString(), gen.Int64Range(-1000, 1000),
		gen.AlphaString(), gen.AlphaString(), gen.Int64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}
