package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wisma.log")

	rf, err := newRotatingFile(path, 10, 0, false)
	require.NoError(t, err)

	_, err = rf.Write([]byte("one\n"))
	require.NoError(t, err)
	_, err = rf.Write([]byte("two\n"))
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestRotatingFileRotatesPastLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wisma.log")

	rf, err := newRotatingFile(path, 1, 0, false)
	require.NoError(t, err)
	// Force a tiny limit so a couple of writes trigger rotation.
	rf.sizeLimit = 32

	line := strings.Repeat("x", 20) + "\n"
	for i := 0; i < 4; i++ {
		_, err = rf.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, rf.Close())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "expected at least one rotated file")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(32))
}

func TestRotatingFileZeroLimitNeverRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wisma.log")

	rf, err := newRotatingFile(path, 0, 0, false)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err = rf.Write([]byte(strings.Repeat("y", 100)))
		require.NoError(t, err)
	}
	require.NoError(t, rf.Close())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Empty(t, matches)
}
