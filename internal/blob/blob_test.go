package blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/stride/pkg/types"
)

func fixedClock() types.Clock {
	return types.ClockFunc(func() time.Time { return time.Unix(0, 1700000000000000000) })
}

func TestStore_PutOpenRelease(t *testing.T) {
	s := New(t.TempDir(), fixedClock())
	ctx := context.Background()

	att, err := s.Put("user-1", "my receipt.pdf", "application/pdf", strings.NewReader("%PDF-1.7"))
	require.NoError(t, err)
	assert.Equal(t, "user-1/1700000000000000000_my_receipt.pdf", att.Path)
	assert.Equal(t, "my receipt.pdf", att.Name)
	assert.Equal(t, "application/pdf", att.Mime)
	assert.Equal(t, int64(8), att.Size)
	assert.True(t, s.Has(att.Path))

	rc, err := s.Open(att.Path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.7", string(data))

	require.NoError(t, s.Release(ctx, att.Path))
	assert.False(t, s.Has(att.Path))
	assert.NoError(t, s.Release(ctx, att.Path), "release is idempotent")

	_, err = s.Open(att.Path)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_Sanitizes(t *testing.T) {
	s := New(t.TempDir(), fixedClock())

	att, err := s.Put("../evil", "../../passwd", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "_evil/1700000000000000000__.._passwd", att.Path)

	att, err = s.Put("u", "", "", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "u/1700000000000000000_file", att.Path)
	assert.Zero(t, att.Size)

	_, err = s.Put("", "a.txt", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestStore_RejectsInvalidPaths(t *testing.T) {
	s := New(t.TempDir(), nil)
	for _, p := range []string{"", "nouser", "../x", "a/b/c", "a/", "/b", "a/../b"} {
		_, err := s.Open(p)
		assert.ErrorIs(t, err, ErrInvalidPath, p)
		assert.ErrorIs(t, s.Release(context.Background(), p), ErrInvalidPath, p)
	}
}

func TestStore_PutAtKeepsPath(t *testing.T) {
	s := New(t.TempDir(), nil)

	n, err := s.PutAt("ada/1700000000000000000_scan.png", strings.NewReader("png!"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.True(t, s.Has("ada/1700000000000000000_scan.png"))

	n, err = s.PutAt("ada/1700000000000000000_scan.png", strings.NewReader("v2"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "PutAt replaces")

	_, err = s.PutAt("../ada/x", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}
