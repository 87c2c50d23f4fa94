package rpcfaults

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesKind(t *testing.T) {
	err := RowNotInTablet("a")
	require.True(t, Is(err, KindRowNotInTablet))
	require.False(t, Is(err, KindScannerBusy))
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	underlying := errors.New("disk exploded")
	err := Wrap(KindFragmentReadError, underlying, "scan fragment")
	require.True(t, Is(err, KindFragmentReadError))
	require.Contains(t, err.Error(), "disk exploded")
}

func TestWrapNilIsNil(t *testing.T) {
	require.NoError(t, Wrap(KindFragmentReadError, nil, "scan fragment"))
}

func TestInvalidPredicateMatchesKind(t *testing.T) {
	err := InvalidPredicate("timeLo > timeHi")
	require.True(t, Is(err, KindInvalidPredicate))
	require.Contains(t, err.Error(), "timeLo > timeHi")
}
