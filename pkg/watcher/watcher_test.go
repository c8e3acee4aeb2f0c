package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, events <-chan string, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case path := <-events:
			if path == want {
				return
			}
		case <-deadline:
			t.Fatalf("no event for %s", want)
		}
	}
}

func TestWatcherReportsRegisteredPath(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched.conf")
	require.NoError(t, os.WriteFile(watched, []byte("v1"), 0644))

	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(watched))

	require.NoError(t, os.WriteFile(watched, []byte("v2"), 0644))
	waitFor(t, w.Events(), watched)
}

func TestWatcherIgnoresUnregisteredPath(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched.conf")
	other := filepath.Join(dir, "other.conf")
	require.NoError(t, os.WriteFile(watched, []byte("v1"), 0644))

	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(watched))

	require.NoError(t, os.WriteFile(other, []byte("noise"), 0644))

	select {
	case path := <-w.Events():
		t.Fatalf("unexpected event for %s", path)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherCatchesCreation(t *testing.T) {
	dir := t.TempDir()
	pending := filepath.Join(dir, "later.conf")

	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(pending))

	require.NoError(t, os.WriteFile(pending, []byte("now"), 0644))
	waitFor(t, w.Events(), pending)
}

func TestActive(t *testing.T) {
	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.Active())
	require.NoError(t, w.Add(filepath.Join(t.TempDir(), "x")))
	assert.True(t, w.Active())
}

func TestAddFailureLeavesInactive(t *testing.T) {
	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()

	// parent directory does not exist, so the watch cannot be placed
	err = w.Add(filepath.Join(t.TempDir(), "missing", "x"))
	require.Error(t, err)
	assert.False(t, w.Active())
}

func TestResetClearsRegistrations(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched.conf")
	require.NoError(t, os.WriteFile(watched, []byte("v1"), 0644))

	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(watched))
	require.True(t, w.Active())

	w.Reset()
	assert.False(t, w.Active())

	require.NoError(t, os.WriteFile(watched, []byte("v2"), 0644))
	select {
	case path := <-w.Events():
		t.Fatalf("unexpected event for %s", path)
	case <-time.After(200 * time.Millisecond):
	}
}
