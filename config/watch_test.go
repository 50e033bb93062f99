package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changes struct {
	mu   sync.Mutex
	seen []*Config
}

func (c *changes) record(cfg *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, cfg)
}

func (c *changes) last() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.seen) == 0 {
		return nil
	}
	return c.seen[len(c.seen)-1]
}

func (c *changes) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func startWatch(t *testing.T, loader *Loader, c *changes) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, loader, c.record, WithDebounce(20*time.Millisecond))
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Allow the watcher to register before the first write.
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.yaml", "log:\n  level: info\n")

	loader := NewLoader()
	loader.AddLayer(path)
	c := &changes{}
	startWatch(t, loader, c)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0600))

	require.Eventually(t, func() bool {
		cfg := c.last()
		return cfg != nil && cfg.Log.Level == "debug"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_KeepsLastGoodConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.json", `{"log": {"level": "info"}}`)

	loader := NewLoader()
	loader.AddLayer(path)
	c := &changes{}
	startWatch(t, loader, c)

	require.NoError(t, os.WriteFile(path, []byte(`{"log": {"level": "bogus"}}`), 0600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, c.count(), "invalid config must not be delivered")

	require.NoError(t, os.WriteFile(path, []byte(`{"log": {"level": "error"}}`), 0600))
	require.Eventually(t, func() bool {
		cfg := c.last()
		return cfg != nil && cfg.Log.Level == "error"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "app.json", `{"server": {"port": 9090}}`)

	loader := NewLoader()
	loader.AddLayer(path)
	c := &changes{}
	startWatch(t, loader, c)

	tmp := filepath.Join(dir, "app.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"server": {"port": 9191}}`), 0600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		cfg := c.last()
		return cfg != nil && cfg.Server.Port == 9191
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_RequiresLayers(t *testing.T) {
	err := Watch(context.Background(), NewLoader(), nil)
	require.Error(t, err)
}
