package tablet

import "github.com/kdi-go/kdi/pkg/walog"

// Recover replays write-ahead log records into the MemFragment. Called
// by the server at startup for every tablet, after every tablet has
// been constructed via New (so a record's TabletID always resolves to
// a live Tablet) and before the tablet starts serving requests. The
// caller is expected to have already filtered records down to this
// tablet's ID.
func (t *Tablet) Recover(records []walog.Record) {
	t.stackMu.Lock()
	defer t.stackMu.Unlock()
	for _, r := range records {
		t.memFrag.Append(r.Cell)
	}
}
