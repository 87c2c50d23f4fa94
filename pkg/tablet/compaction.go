package tablet

// DoCompaction runs one compaction pass over this tablet's fragment
// stack. Exported for pkg/compactor's worker loop, which selects
// tablets by CompactionPriority and drives this method directly rather
// than duplicating the merge/replace logic doCompaction already
// implements.
func (t *Tablet) DoCompaction() error {
	return t.doCompaction()
}
