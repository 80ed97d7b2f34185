package logfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestOpen_CreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "agent-1")

	w, err := Open(path, DefaultMaxBytes, DefaultBackups)
	require.NoError(t, err)
	defer w.Close()

	assert.FileExists(t, path)
	assert.Equal(t, path, w.Path())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("", DefaultMaxBytes, DefaultBackups)
	assert.Error(t, err)
}

func TestWrite_AppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0644))

	w, err := Open(path, DefaultMaxBytes, DefaultBackups)
	require.NoError(t, err)
	_, err = w.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "old\nnew\n", readFile(t, path))
}

func TestWrite_RotatesWhenLimitWouldBeExceeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent")

	w, err := Open(path, 10, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("aaaa\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("bbbb\n"))
	require.NoError(t, err)
	assert.NoFileExists(t, path+".1", "exactly at the limit must not rotate")

	_, err = w.Write([]byte("cccc\n"))
	require.NoError(t, err)

	assert.Equal(t, "cccc\n", readFile(t, path))
	assert.Equal(t, "aaaa\nbbbb\n", readFile(t, path+".1"))
}

func TestWrite_KeepsAtMostConfiguredBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent")

	w, err := Open(path, 6, 2)
	require.NoError(t, err)
	defer w.Close()

	for _, line := range []string{"gen-1\n", "gen-2\n", "gen-3\n", "gen-4\n", "gen-5\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	assert.Equal(t, "gen-5\n", readFile(t, path))
	assert.Equal(t, "gen-4\n", readFile(t, path+".1"))
	assert.Equal(t, "gen-3\n", readFile(t, path+".2"))
	assert.NoFileExists(t, path+".3")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestWrite_OversizedWriteLandsInFreshSegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent")

	w, err := Open(path, 8, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("x\n"))
	require.NoError(t, err)
	big := strings.Repeat("y", 20) + "\n"
	_, err = w.Write([]byte(big))
	require.NoError(t, err)

	assert.Equal(t, big, readFile(t, path))
	assert.Equal(t, "x\n", readFile(t, path+".1"))
}

func TestWrite_NoBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent")

	w, err := Open(path, 6, 0)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("again\n"))
	require.NoError(t, err)

	assert.Equal(t, "again\n", readFile(t, path))
	assert.NoFileExists(t, path+".1")
}

func TestWrite_SizeAccountsForExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent")
	require.NoError(t, os.WriteFile(path, []byte("12345678\n"), 0644))

	w, err := Open(path, 10, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("ab\n"))
	require.NoError(t, err)

	assert.Equal(t, "ab\n", readFile(t, path))
	assert.Equal(t, "12345678\n", readFile(t, path+".1"))
}

func TestWrite_AfterCloseFails(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "agent"), DefaultMaxBytes, DefaultBackups)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "second close is a no-op")

	_, err = w.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestWrite_RecoversAfterFailedRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent")

	w, err := Open(path, 10, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("aaaa\n"))
	require.NoError(t, err)

	// Non-empty directories in place of the backups make every rename fail
	for _, name := range []string{path + ".1", path + ".2"} {
		require.NoError(t, os.MkdirAll(filepath.Join(name, "blocker"), 0755))
	}
	_, err = w.Write([]byte("bbbbbbbb\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, os.ErrClosed)

	require.NoError(t, os.RemoveAll(path+".1"))
	require.NoError(t, os.RemoveAll(path+".2"))

	_, err = w.Write([]byte("cccccc\n"))
	require.NoError(t, err)
	assert.Equal(t, "cccccc\n", readFile(t, path))
	assert.Equal(t, "aaaa\n", readFile(t, path+".1"))
}

func TestWrite_ReopensWhenNoSegmentIsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent")

	w, err := Open(path, DefaultMaxBytes, DefaultBackups)
	require.NoError(t, err)
	defer w.Close()

	// Simulates a rotation whose reopen failed
	w.mu.Lock()
	require.NoError(t, w.file.Close())
	w.file = nil
	w.mu.Unlock()

	_, err = w.Write([]byte("back\n"))
	require.NoError(t, err)
	assert.Equal(t, "back\n", readFile(t, path))
}
