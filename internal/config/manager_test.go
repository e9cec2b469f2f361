package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestManagerLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := NewManager("").Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
	assert.True(t, cfg.Logging.Console)
	assert.False(t, cfg.DiscreteRepeat())
}

func TestManagerLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
platform:
  os: ios
client:
  request_timeout: 3s
storage:
  driver: sqlite
  path: /tmp/notify.db
`)
	m := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	assert.True(t, cfg.DiscreteRepeat())
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	// Untouched sections keep their defaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Host.DeliverBurst)
}

func TestManagerLoadJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{"platform":{"discrete_repeat":true},"host":{"deliver_burst":2}}`)
	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.True(t, cfg.DiscreteRepeat())
	assert.Equal(t, 2, cfg.Host.DeliverBurst)
}

func TestManagerLoadEmptyYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	writeFile(t, path, "")
	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestManagerLoadRejects(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
	}{
		{"unknown field", "c.yaml", "client:\n  retries: 3\n"},
		{"trailing data", "c.json", `{"client":{}} {"client":{}}`},
		{"bad duration", "c.yaml", "client:\n  request_timeout: soon\n"},
		{"negative duration", "c.yaml", "client:\n  request_timeout: -1s\n"},
		{"bad driver", "c.yaml", "storage:\n  driver: redis\n"},
		{"file driver without path", "c.yaml", "storage:\n  driver: file\n"},
		{"bad level", "c.yaml", "logging:\n  level: loud\n"},
		{"bad timezone", "c.yaml", "host:\n  timezone: Mars/Olympus\n"},
		{"negative rate", "c.yaml", "host:\n  deliver_rate_per_sec: -1\n"},
		{"bad os", "c.yaml", "platform:\n  os: amiga\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			writeFile(t, path, tc.body)
			m := NewManager(path)
			_, err := m.Load()
			assert.Error(t, err)
			assert.Nil(t, m.Get())
		})
	}
}

func TestManagerLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "storage:\n  driver: file\n  path: /tmp/a.json\n")
	t.Setenv("LOCALNOTIFY_STORAGE_DRIVER", "memory")
	t.Setenv("LOCALNOTIFY_HOST_DELIVER_RATE_PER_SEC", "0.5")
	t.Setenv("LOCALNOTIFY_PLATFORM_DISCRETE_REPEAT", "true")

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/a.json", cfg.Storage.Path)
	assert.Equal(t, 0.5, cfg.Host.DeliverRatePerSec)
	assert.True(t, cfg.DiscreteRepeat())
}

func TestManagerLoadEnvIsValidated(t *testing.T) {
	t.Setenv("LOCALNOTIFY_CLIENT_REQUEST_TIMEOUT", "later")
	_, err := NewManager("").Load()
	assert.Error(t, err)
}

func TestManagerSubscribeKeepsNewest(t *testing.T) {
	m := NewManager("")
	ch := m.Subscribe(1)
	a, b := Default(), Default()
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-ch)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	m.publish(a) // no subscribers left, must not panic
}

func TestManagerWatchPublishesValidChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "logging:\n  level: info\n")
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "logging:\n  level: loud\n")
	time.Sleep(2 * reloadDebounce)
	writeFile(t, path, "logging:\n  level: debug\n")

	select {
	case cfg := <-ch:
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "debug", m.Get().Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}

func TestManagerWatchWithoutFileWaitsForCtx(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, NewManager("").Watch(ctx))
}
