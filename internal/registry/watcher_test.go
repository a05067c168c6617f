package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  - slug: one\n"), 0644))

	reg, err := LoadFile(path, nil)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	reloaded := make(chan struct{}, 4)
	w, err := NewWatcher(path, reg, func() { reloaded <- struct{}{} }, nil)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("templates:\n  - slug: one\n  - slug: two\n"), 0644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("registry was not reloaded")
	}
	assert.Eventually(t, func() bool { return reg.Len() == 2 }, time.Second, 10*time.Millisecond)
}

func TestWatcherKeepsCatalogueOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  - slug: one\n"), 0644))

	reg, err := LoadFile(path, nil)
	require.NoError(t, err)

	w, err := NewWatcher(path, reg, nil, nil)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("templates: [\n"), 0644))
	time.Sleep(200 * time.Millisecond)

	_, ok := reg.Get("one")
	assert.True(t, ok)
}
