package wrappers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrsEmpty(t *testing.T) {
	var e Errs
	require.False(t, e.Errored())
	require.Nil(t, e.Err())
	require.Equal(t, 0, e.Len())
}

func TestErrsSingle(t *testing.T) {
	var e Errs
	want := errors.New("boom")
	e.Add(want)
	require.True(t, e.Errored())
	require.Equal(t, 1, e.Len())
	require.Equal(t, want, e.Err())
}

func TestErrsMultiple(t *testing.T) {
	var e Errs
	e.Add(errors.New("first"))
	e.Add(nil)
	e.Add(errors.New("second"))
	require.Equal(t, 2, e.Len())
	require.Contains(t, e.Err().Error(), "2 errors occurred")
	require.Contains(t, e.Err().Error(), "first")
	require.Contains(t, e.Err().Error(), "second")
}
