package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/censor-ci/censor/pkg/cli"
	"github.com/censor-ci/censor/pkg/config"
	"github.com/censor-ci/censor/pkg/types"
)

func runInit(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := cli.NewCLIWithOutput(nil, &out, &out)
	err := c.Execute(append([]string{"init"}, args...))
	return out.String(), err
}

func loadPipeline(t *testing.T, dir string) *types.ProjectConfig {
	t.Helper()
	cfg, err := config.NewManager().LoadConfig(filepath.Join(dir, ".censor.yml"))
	require.NoError(t, err)
	return cfg
}

func TestInit_WithoutDetectedTools(t *testing.T) {
	dir := t.TempDir()

	out, err := runInit(t, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "shell placeholder")

	cfg := loadPipeline(t, dir)
	require.Len(t, cfg.Stages[types.StageTest], 1)
	assert.Equal(t, "shell", cfg.Stages[types.StageTest][0].Plugin)
	assert.Equal(t, []string{"vendor", "node_modules"}, cfg.BuildSettings.Ignore)
	assert.Len(t, cfg.Stages[types.StageFailure], 1)
}

func TestInit_DetectsPlugins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module example.com/app\n"), 0o644))

	_, err := runInit(t, dir)
	require.NoError(t, err)

	cfg := loadPipeline(t, dir)
	test := cfg.Stages[types.StageTest]
	require.Len(t, test, 1)
	assert.Equal(t, "golangci_lint", test[0].Plugin)
	assert.EqualValues(t, 0, test[0].Options["allowed_warnings"])
}

func TestInit_ExistingDocument(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, ".censor.yml")
	require.NoError(t, os.WriteFile(existing, []byte("test: {}\n"), 0o644))

	_, err := runInit(t, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "test: {}\n", string(data), "an existing document is left alone")

	_, err = runInit(t, dir, "--force")
	require.NoError(t, err)
	assert.NotEmpty(t, loadPipeline(t, dir).Stages[types.StageTest])
}

func TestInit_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := runInit(t, file)
	assert.Error(t, err)
}
