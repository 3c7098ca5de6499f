package clipboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopy_OK(t *testing.T) {
	m := &Memory{}
	out := Copy(m, "print(1)")
	require.True(t, out.OK)
	require.NoError(t, out.Err)
	require.Empty(t, out.Suffix())
	require.Equal(t, "print(1)", m.Text())
	require.Equal(t, 1, m.Writes())
}

func TestCopy_Failure(t *testing.T) {
	m := &Memory{Fail: errors.New("xclip not found")}
	out := Copy(m, "x")
	require.False(t, out.OK)
	require.Equal(t, " (Clipboard copy failed: xclip not found)", out.Suffix())
	require.Zero(t, m.Writes())
}

func TestCopy_NilAndDisabled(t *testing.T) {
	out := Copy(nil, "x")
	require.ErrorIs(t, out.Err, ErrDisabled)

	out = Copy(New(false), "x")
	require.ErrorIs(t, out.Err, ErrDisabled)
	require.Contains(t, out.Suffix(), "clipboard disabled")
}
