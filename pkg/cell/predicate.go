package cell

import "bytes"

// Predicate is a conjunction of optional row-interval set, column-family
// set, timestamp range, and a cap on versions retained per (row,column),
// applied post-merge rather than during the merge itself.
type Predicate struct {
	Rows       []RowInterval // nil/empty means unbounded
	Families   [][]byte      // nil/empty means all families
	TimeLo     int64         // inclusive; 0 means unbounded
	TimeHi     int64         // inclusive; 0 means unbounded
	MaxHistory int           // 0 means unbounded
}

// Unbounded returns a predicate matching every cell.
func Unbounded() Predicate {
	return Predicate{}
}

// RowAllowed reports whether row falls in at least one of the
// predicate's row intervals (or the predicate has none, meaning all
// rows are allowed).
func (p Predicate) RowAllowed(row []byte) bool {
	if len(p.Rows) == 0 {
		return true
	}
	for _, iv := range p.Rows {
		if iv.Contains(row) {
			return true
		}
	}
	return false
}

// familyOf extracts the column family from a "family:qualifier"-style
// column, matching the corpus convention (teacher's Row.Set / Get use
// the same colon-joined key).
func familyOf(column []byte) []byte {
	idx := bytes.IndexByte(column, ':')
	if idx < 0 {
		return column
	}
	return column[:idx]
}

// FamilyAllowed reports whether column's family passes the predicate's
// family set (or the predicate has none, meaning all families pass).
func (p Predicate) FamilyAllowed(column []byte) bool {
	if len(p.Families) == 0 {
		return true
	}
	fam := familyOf(column)
	for _, f := range p.Families {
		if bytes.Equal(f, fam) {
			return true
		}
	}
	return false
}

// TimeAllowed reports whether ts falls within the predicate's timestamp
// range.
func (p Predicate) TimeAllowed(ts int64) bool {
	if p.TimeLo != 0 && ts < p.TimeLo {
		return false
	}
	if p.TimeHi != 0 && ts > p.TimeHi {
		return false
	}
	return true
}

// Matches reports whether c passes every predicate dimension except
// MaxHistory, which is a post-merge cap rather than a per-cell test.
func (p Predicate) Matches(c Cell) bool {
	return p.RowAllowed(c.Row) && p.FamilyAllowed(c.Column) && p.TimeAllowed(c.Timestamp)
}

// StripHistory returns a copy of p with MaxHistory zeroed — used by
// Tablet.Scan, which applies the history cap itself as a post-merge
// filter rather than passing it down into the merge predicate.
func (p Predicate) StripHistory() Predicate {
	p.MaxHistory = 0
	return p
}

// RowsSubsetOf reports whether every row interval in p is contained in
// bound — used to validate a scan predicate against a tablet's extent.
func (p Predicate) RowsSubsetOf(bound RowInterval) bool {
	if len(p.Rows) == 0 {
		return bound.Lo == nil && bound.Hi == nil
	}
	for _, iv := range p.Rows {
		if !iv.SubsetOf(bound) {
			return false
		}
	}
	return true
}

// ClipRows intersects every row interval in p with bound, dropping empty
// results. Used by FragmentMerge callers to clip a predicate down to a
// single tablet's extent.
func (p Predicate) ClipRows(bound RowInterval) Predicate {
	if len(p.Rows) == 0 {
		p.Rows = []RowInterval{bound}
		return p
	}
	clipped := make([]RowInterval, 0, len(p.Rows))
	for _, iv := range p.Rows {
		c := intersect(iv, bound)
		if !c.Empty() {
			clipped = append(clipped, c)
		}
	}
	p.Rows = clipped
	return p
}

func intersect(a, b RowInterval) RowInterval {
	out := RowInterval{LoInclusive: true, HiInclusive: true}
	switch {
	case a.Lo == nil:
		out.Lo, out.LoInclusive = b.Lo, b.LoInclusive
	case b.Lo == nil:
		out.Lo, out.LoInclusive = a.Lo, a.LoInclusive
	default:
		c := bytes.Compare(a.Lo, b.Lo)
		switch {
		case c > 0:
			out.Lo, out.LoInclusive = a.Lo, a.LoInclusive
		case c < 0:
			out.Lo, out.LoInclusive = b.Lo, b.LoInclusive
		default:
			out.Lo, out.LoInclusive = a.Lo, a.LoInclusive && b.LoInclusive
		}
	}
	switch {
	case a.Hi == nil:
		out.Hi, out.HiInclusive = b.Hi, b.HiInclusive
	case b.Hi == nil:
		out.Hi, out.HiInclusive = a.Hi, a.HiInclusive
	default:
		c := bytes.Compare(a.Hi, b.Hi)
		switch {
		case c < 0:
			out.Hi, out.HiInclusive = a.Hi, a.HiInclusive
		case c > 0:
			out.Hi, out.HiInclusive = b.Hi, b.HiInclusive
		default:
			out.Hi, out.HiInclusive = a.Hi, a.HiInclusive && b.HiInclusive
		}
	}
	return out
}
