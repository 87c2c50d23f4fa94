// Package rpcfaults defines the typed error kinds spec.md §7 lists for
// the RPC surface and the engine beneath it — routing, validation,
// concurrency, and state faults that must surface to the caller
// verbatim rather than as opaque wrapped errors. Generalized from the
// teacher's ad hoc fmt.Errorf strings in tablet.go/split.go into a
// small Kind-tagged error type in the spirit of
// devlibx-pebble/internal/base's error-kind constants.
package rpcfaults

import "github.com/pkg/errors"

// Kind identifies the category of a Fault, letting callers branch on
// "what went wrong" without string-matching error text.
type Kind int

const (
	// KindTableDoesNotExist: the named table has no tablets on this server.
	KindTableDoesNotExist Kind = iota
	// KindRowNotOnServer: no tablet on this server owns the row.
	KindRowNotOnServer
	// KindRowNotInTablet: the row (or a predicate's row set) falls outside
	// a specific tablet's extent.
	KindRowNotInTablet
	// KindInvalidPredicate: a scan predicate is malformed (e.g. inverted
	// bounds).
	KindInvalidPredicate
	// KindUnsupportedHistoryInCompaction: a compaction was asked to retain
	// more history than the erasure policy supports.
	KindUnsupportedHistoryInCompaction
	// KindScannerBusy: a scanner is already serving a concurrent scanMore.
	KindScannerBusy
	// KindScannerExpired: a scanner handle no longer exists (closed, GC'd,
	// or its tablet was destroyed).
	KindScannerExpired
	// KindReplaceFragmentsMismatch: a compaction tried to swap a fragment
	// subsequence that no longer matches the live stack — a server bug.
	KindReplaceFragmentsMismatch
	// KindFragmentReadError: a fragment's Scan aborted with an I/O error.
	KindFragmentReadError
)

func (k Kind) String() string {
	switch k {
	case KindTableDoesNotExist:
		return "table_does_not_exist"
	case KindRowNotOnServer:
		return "row_not_on_server"
	case KindRowNotInTablet:
		return "row_not_in_tablet"
	case KindInvalidPredicate:
		return "invalid_predicate"
	case KindUnsupportedHistoryInCompaction:
		return "unsupported_history_in_compaction"
	case KindScannerBusy:
		return "scanner_busy"
	case KindScannerExpired:
		return "scanner_expired"
	case KindReplaceFragmentsMismatch:
		return "replace_fragments_mismatch"
	case KindFragmentReadError:
		return "fragment_read_error"
	default:
		return "unknown"
	}
}

// Fault is a typed error carrying a Kind plus the underlying message.
type Fault struct {
	kind Kind
	msg  string
	err  error
}

func (f *Fault) Error() string {
	if f.err != nil {
		return f.msg + ": " + f.err.Error()
	}
	return f.msg
}

func (f *Fault) Unwrap() error { return f.err }

// Kind returns the fault's category.
func (f *Fault) Kind() Kind { return f.kind }

// New builds a Fault of the given kind with a plain message.
func New(kind Kind, msg string) error {
	return &Fault{kind: kind, msg: msg}
}

// Wrap builds a Fault of the given kind around an underlying error.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Fault{kind: kind, msg: msg, err: errors.WithStack(err)}
}

// Is reports whether err is a Fault of the given kind.
func Is(err error, kind Kind) bool {
	var f *Fault
	if !errors.As(err, &f) {
		return false
	}
	return f.kind == kind
}

// TableDoesNotExist builds a KindTableDoesNotExist fault.
func TableDoesNotExist(table string) error {
	return New(KindTableDoesNotExist, "table does not exist: "+table)
}

// RowNotOnServer builds a KindRowNotOnServer fault.
func RowNotOnServer(row string) error {
	return New(KindRowNotOnServer, "row not on server: "+row)
}

// RowNotInTablet builds a KindRowNotInTablet fault.
func RowNotInTablet(row string) error {
	return New(KindRowNotInTablet, "row not in tablet: "+row)
}

// ScannerBusy builds a KindScannerBusy fault.
func ScannerBusy(scanID string) error {
	return New(KindScannerBusy, "scanner busy: "+scanID)
}

// ScannerExpired builds a KindScannerExpired fault.
func ScannerExpired(scanID string) error {
	return New(KindScannerExpired, "scanner expired: "+scanID)
}

// ReplaceFragmentsMismatch builds a KindReplaceFragmentsMismatch fault.
func ReplaceFragmentsMismatch(msg string) error {
	return New(KindReplaceFragmentsMismatch, "replace fragments mismatch: "+msg)
}

// InvalidPredicate builds a KindInvalidPredicate fault.
func InvalidPredicate(msg string) error {
	return New(KindInvalidPredicate, "invalid predicate: "+msg)
}
