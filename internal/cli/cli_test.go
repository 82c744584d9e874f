package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retro/rshop/internal/config"
	"github.com/retro/rshop/internal/remote"
)

// runCLI executes the root command with an isolated config file.
func runCLI(t *testing.T, configFile string, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", configFile}, args...))
	err := root.Execute()
	return out.String(), err
}

// newLocalShare creates <root>/games with a few files.
func newLocalShare(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "games", "snes"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "games", "readme.txt"), []byte("hello"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "games", "snes", "zelda.bin"), bytes.Repeat([]byte("z"), 2048), 0644))
	return root
}

func TestConfigCommands(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rshop.conf")

	out, err := runCLI(t, cfgPath, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, cfgPath+"\n", out)

	out, err = runCLI(t, cfgPath, "", "config", "init", "--defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration saved to "+cfgPath)
	assert.FileExists(t, cfgPath)

	out, err = runCLI(t, cfgPath, "", "config", "init", "--defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration already exists")

	out, err = runCLI(t, cfgPath, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "port:               445")
	assert.Contains(t, out, "max bytes:          8.0 GiB")
}

func TestConfigInitInteractive(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rshop.conf")

	_, err := runCLI(t, cfgPath, "2445\nalice\n\n1 GiB\n4\ndebug\n", "config", "init")
	require.NoError(t, err)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 2445, cfg.Remote.Port)
	assert.Equal(t, "alice", cfg.Remote.User)
	assert.Equal(t, int64(1<<30), cfg.Extract.MaxBytes)
	assert.Equal(t, 4, cfg.Pool.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestListCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rshop.conf")
	root := newLocalShare(t)

	out, err := runCLI(t, cfgPath, "", "ls", "--host", "local", "--share", "games", "--local-root", root, "--depth", "1", "--json")
	require.NoError(t, err)

	var entries []remote.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"readme.txt", "snes", "snes/zelda.bin"}, paths)

	out, err = runCLI(t, cfgPath, "", "ls", "snes", "--host", "local", "--share", "games", "--local-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "snes/zelda.bin")
}

func TestTestCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rshop.conf")
	root := newLocalShare(t)

	out, err := runCLI(t, cfgPath, "", "test", "--host", "local", "--share", "games", "--local-root", root)
	require.NoError(t, err)
	assert.Contains(t, out, `Connection to \\local\games OK`)

	_, err = runCLI(t, cfgPath, "", "test", "--host", "local", "--share", "missing", "--local-root", root)
	require.Error(t, err)
	assert.Equal(t, remote.ReasonShareNotFound, err.Error())

	_, err = runCLI(t, cfgPath, "", "test", "--share", "games", "--local-root", root)
	require.Error(t, err)
	assert.Equal(t, "Host is required", err.Error())
}

func TestGetCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rshop.conf")
	root := newLocalShare(t)
	dest := filepath.Join(t.TempDir(), "zelda.bin")

	_, err := runCLI(t, cfgPath, "", "get", "snes/zelda.bin", dest, "--host", "local", "--share", "games", "--local-root", root)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Len(t, data, 2048)

	_, err = runCLI(t, cfgPath, "n\n", "get", "snes/zelda.bin", dest, "--host", "local", "--share", "games", "--local-root", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use --force")

	_, err = runCLI(t, cfgPath, "", "get", "snes/zelda.bin", dest, "--force", "--id", "again", "--host", "local", "--share", "games", "--local-root", root)
	require.NoError(t, err)

	missing := filepath.Join(t.TempDir(), "nope.bin")
	_, err = runCLI(t, cfgPath, "", "get", "snes/nope.bin", missing, "--host", "local", "--share", "games", "--local-root", root)
	require.Error(t, err)
	assert.Equal(t, remote.ReasonPathNotFound, err.Error())
	assert.NoFileExists(t, missing)
}

func TestExtractCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rshop.conf")
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "game.zip")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, size := range map[string]int{"a.txt": 100, "dir/b.txt": 50} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(bytes.Repeat([]byte("x"), size))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	target := filepath.Join(dir, "out")
	out, err := runCLI(t, cfgPath, "", "extract", archivePath, target, "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt\n")
	assert.Contains(t, out, "dir/b.txt\n")
	assert.Contains(t, out, "Extracted 2 files to "+target)
	assert.FileExists(t, filepath.Join(target, "dir", "b.txt"))
}

func TestDfCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "rshop.conf")
	out, err := runCLI(t, cfgPath, "", "df", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, " free of ")
}

func TestPromptConfirm(t *testing.T) {
	var out bytes.Buffer
	ok, err := promptConfirm(strings.NewReader("yes\n"), &out, "Overwrite?")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Overwrite? [y/N]: ", out.String())

	ok, err = promptConfirm(strings.NewReader("\n"), &out, "Overwrite?")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = promptConfirm(strings.NewReader(""), &out, "Overwrite?")
	assert.Error(t, err)
}

func TestConfiguredLogFile(t *testing.T) {
	got, err := configuredLogFile("")
	require.NoError(t, err)
	assert.Empty(t, got)

	abs := filepath.Join(t.TempDir(), "serve.log")
	got, err = configuredLogFile(abs)
	require.NoError(t, err)
	assert.Equal(t, abs, got)
}
