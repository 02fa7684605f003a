package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadLinesSkipsBlanksAndComments(t *testing.T) {
	path := writeFile(t, "hosts.txt", "10.0.0.1\n\n# core routers\n10.0.0.2\n   \n10.0.0.3\n")

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, lines)
}

func TestReadLinesPreservesOrder(t *testing.T) {
	path := writeFile(t, "commands.txt", "show version\nshow clock\nshow ip route\n")

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"show version", "show clock", "show ip route"}, lines)
}

func TestLoadHostsMissingFile(t *testing.T) {
	_, err := LoadHosts(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestCommandSetFallback(t *testing.T) {
	def := writeFile(t, "default.txt", "show version\n")
	xr := writeFile(t, "asr9k.txt", "show platform\nshow version\n")

	cs, err := LoadCommandSet(def, map[string]string{"asr9k": xr})
	require.NoError(t, err)

	assert.Equal(t, []string{"show platform", "show version"}, cs.CommandsFor("asr9k"))
	// unknown class falls back to the default list
	assert.Equal(t, []string{"show version"}, cs.CommandsFor("cat3850"))
	assert.Equal(t, []string{"show version"}, cs.CommandsFor(""))
}

func TestLoadCommandSetMissingClassFile(t *testing.T) {
	def := writeFile(t, "default.txt", "show version\n")

	_, err := LoadCommandSet(def, map[string]string{"crs": filepath.Join(t.TempDir(), "absent.txt")})
	assert.Error(t, err)
}
