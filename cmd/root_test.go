package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeGirum/face-recognition/internal/runtime"
)

// writeConfig creates a config file pointing clips and the database at a temp dir.
func writeConfig(t *testing.T) (configPath, clipsDir string) {
	t.Helper()
	dir := t.TempDir()
	clipsDir = filepath.Join(dir, "clips")
	require.NoError(t, os.MkdirAll(clipsDir, 0o755))

	configPath = filepath.Join(dir, "config.yaml")
	content := `main:
  log:
    console:
      enabled: false
clips:
  dir: ` + clipsDir + `
recognition:
  driver: sqlite
  path: ` + filepath.Join(dir, "recognition.db") + `
mqtt:
  password: hunter2
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, clipsDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := runtime.NewContext("test", "")
	t.Cleanup(func() { _ = app.Close() })

	root := RootCommand(app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClipsList(t *testing.T) {
	cfg, clipsDir := writeConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(clipsDir, "door.mp4"), []byte("v"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(clipsDir, "door_annotated.mp4"), []byte("v"), 0o600))

	out, err := execute(t, "--config", cfg, "clips", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "door.mp4")
	assert.Contains(t, out, "yes")
	assert.NotContains(t, out, "door_annotated.mp4")
}

func TestDBInfoEmpty(t *testing.T) {
	cfg, _ := writeConfig(t)

	out, err := execute(t, "--config", cfg, "db", "info")
	require.NoError(t, err)
	assert.Contains(t, out, "0 people, 0 embeddings")
}

func TestDBClearRequiresConfirmation(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := execute(t, "--config", cfg, "db", "clear")
	require.Error(t, err)

	out, err := execute(t, "--config", cfg, "db", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	cfg, clipsDir := writeConfig(t)

	out, err := execute(t, "--config", cfg, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, clipsDir)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "********")
}

func TestEnrollNeedsTwoArgs(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := execute(t, "--config", cfg, "enroll", "door.mp4")
	require.Error(t, err)
}

func TestDBExportToSQLite(t *testing.T) {
	cfg, _ := writeConfig(t)
	target := filepath.Join(t.TempDir(), "copy.db")

	out, err := execute(t, "--config", cfg, "db", "export", "--driver", "sqlite", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "0 people (0 new), 0 embeddings copied")
	assert.FileExists(t, target)
}
