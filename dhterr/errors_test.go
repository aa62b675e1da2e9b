package dhterr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWireCodeKnownError(t *testing.T) {
	require.Equal(t, CodeMethodUnknown, WireCode(ErrMethodUnknown))
	require.Equal(t, CodeImmutableSubstitution, WireCode(ErrImmutableSubstitution))
}

func TestWireCodeWrappedError(t *testing.T) {
	wrapped := Wrap(ErrSequenceNotMonotonic, "storeValue rejected")
	require.Equal(t, CodeSequenceNotMonotonic, WireCode(wrapped))
	require.Contains(t, wrapped.Error(), "storeValue rejected")
}

func TestWireCodeUnknownError(t *testing.T) {
	require.Equal(t, CodeGeneric, WireCode(ErrIllegalState))
}
