package cell

import "bytes"

// RowInterval is a bounded row range used both as a tablet's extent and
// as a row predicate. Lo/Hi are nil when that side is unbounded. Each
// side is independently inclusive or exclusive.
type RowInterval struct {
	Lo          []byte
	Hi          []byte
	LoInclusive bool
	HiInclusive bool
}

// UnboundedRow returns the interval covering every possible row.
func UnboundedRow() RowInterval {
	return RowInterval{LoInclusive: true, HiInclusive: true}
}

// Contains reports whether row falls within the interval.
func (iv RowInterval) Contains(row []byte) bool {
	if iv.Lo != nil {
		c := bytes.Compare(row, iv.Lo)
		if c < 0 || (c == 0 && !iv.LoInclusive) {
			return false
		}
	}
	if iv.Hi != nil {
		c := bytes.Compare(row, iv.Hi)
		if c > 0 || (c == 0 && !iv.HiInclusive) {
			return false
		}
	}
	return true
}

// Empty reports whether the interval can contain no row at all (e.g.
// Lo == Hi with at least one side exclusive).
func (iv RowInterval) Empty() bool {
	if iv.Lo == nil || iv.Hi == nil {
		return false
	}
	c := bytes.Compare(iv.Lo, iv.Hi)
	if c > 0 {
		return true
	}
	if c == 0 {
		return !(iv.LoInclusive && iv.HiInclusive)
	}
	return false
}

// SubsetOf reports whether iv is entirely contained within other —
// used to validate a scan predicate's row set against a tablet's
// extent before opening a scanner.
func (iv RowInterval) SubsetOf(other RowInterval) bool {
	if other.Lo != nil {
		if iv.Lo == nil {
			return false
		}
		c := bytes.Compare(iv.Lo, other.Lo)
		if c < 0 {
			return false
		}
		if c == 0 && iv.LoInclusive && !other.LoInclusive {
			return false
		}
	}
	if other.Hi != nil {
		if iv.Hi == nil {
			return false
		}
		c := bytes.Compare(iv.Hi, other.Hi)
		if c > 0 {
			return false
		}
		if c == 0 && iv.HiInclusive && !other.HiInclusive {
			return false
		}
	}
	return true
}

// Intersects reports whether iv and other share at least one row.
func (iv RowInterval) Intersects(other RowInterval) bool {
	lo, hi := iv, other
	// Upper bound of the intersection is the lesser Hi; lower bound is
	// the greater Lo. Two unbounded sides never conflict.
	if lo.Hi != nil && hi.Lo != nil {
		c := bytes.Compare(lo.Hi, hi.Lo)
		if c < 0 || (c == 0 && !(lo.HiInclusive && hi.LoInclusive)) {
			return false
		}
	}
	if hi.Hi != nil && lo.Lo != nil {
		c := bytes.Compare(hi.Hi, lo.Lo)
		if c < 0 || (c == 0 && !(hi.HiInclusive && lo.LoInclusive)) {
			return false
		}
	}
	return true
}
