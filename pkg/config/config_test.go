package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.MaxConcurrentHosts)
	assert.Equal(t, 3*time.Second, cfg.Transport.Settle())
}

func TestValidateRejectsZeroSettle(t *testing.T) {
	cfg := Default()
	cfg.Transport.SettleSec = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentHosts = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Transport.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestFileStoreLoad(t *testing.T) {
	yaml := `
outputDir: /var/lib/netcheck
ticket: CHG-1234
maxConcurrentHosts: 4
transport:
  port: 2222
  dialTimeoutSec: 10
  settleSec: 5
  cmdTimeoutSec: 300
  hostDeadlineSec: 600
inventory:
  hostFile: hosts.txt
  commandFile: commands.txt
  classFiles:
    asr9k: commands_asr9k.txt
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg := Default()
	require.NoError(t, NewFileStore(path).Load(cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/netcheck", cfg.OutputDir)
	assert.Equal(t, "CHG-1234", cfg.Ticket)
	assert.Equal(t, 4, cfg.MaxConcurrentHosts)
	assert.Equal(t, 2222, cfg.Transport.Port)
	assert.Equal(t, 5*time.Minute, cfg.Transport.CmdTimeout())
	assert.Equal(t, "commands_asr9k.txt", cfg.Inventory.ClassFiles["asr9k"])
}

func TestFileStoreLoadMissing(t *testing.T) {
	cfg := Default()
	err := NewFileStore(filepath.Join(t.TempDir(), "absent.yaml")).Load(cfg)
	assert.Error(t, err)
}

func TestFileStoreWatchFiresOnRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewFileStore(path)
	require.NoError(t, store.Save(Default()))

	changed := make(chan struct{}, 1)
	require.NoError(t, store.Watch(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}))

	// in-place rewrite, the operation the watcher reacts to
	require.NoError(t, os.WriteFile(path, []byte("ticket: CHG-42\n"), 0600))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not report the rewrite")
	}
}

func TestFileStoreWatchRejectsNilCallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewFileStore(path)
	require.NoError(t, store.Save(Default()))

	assert.Error(t, store.Watch(nil))
}

func TestFileStoreSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewFileStore(path)

	in := Default()
	in.Ticket = "CHG-99"
	require.NoError(t, store.Save(in))

	out := &Config{}
	require.NoError(t, store.Load(out))
	assert.Equal(t, "CHG-99", out.Ticket)
	assert.Equal(t, in.Transport.Port, out.Transport.Port)
}
