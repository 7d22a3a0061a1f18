package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/censor-ci/censor/pkg/config"
	"github.com/censor-ci/censor/pkg/plugins"
	"github.com/censor-ci/censor/pkg/types"
)

func (c *CLI) newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter pipeline document",
		Long: `Write a .censor.yml into path (default: the current directory). The Test
stage lists every plugin whose zero-config detector matches the project.`,
		Args: cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return c.runInit(path, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing pipeline document")
	return cmd
}

func (c *CLI) runInit(path string, force bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read project directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	target := filepath.Join(path, config.ConfigFileNames[0])
	if existing := config.NewManager().FindConfig(path); existing != "" && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", filepath.Base(existing))
	}

	detected := plugins.DefaultRegistry().ZeroConfigPlugins(path)
	if len(detected) > 0 {
		c.console.Info(fmt.Sprintf("Detected plugins: %v", detected))
	} else {
		c.console.Info("No analysis tools detected, adding a shell placeholder")
	}

	data, err := yaml.Marshal(createStarterConfig(detected))
	if err != nil {
		return fmt.Errorf("failed to encode pipeline: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to write pipeline: %w", err)
	}

	c.console.Success(fmt.Sprintf("Created %s", target))
	return nil
}

// createStarterConfig builds a pipeline that runs detected in Test and
// reports the outcome on the console
func createStarterConfig(detected []string) *types.ProjectConfig {
	cfg := &types.ProjectConfig{
		BuildSettings: types.BuildSettings{
			Ignore: []string{"vendor", "node_modules"},
		},
		Stages: map[types.Stage][]types.PluginEntry{},
	}

	var test []types.PluginEntry
	for _, name := range detected {
		test = append(test, types.PluginEntry{
			Plugin:  name,
			Options: map[string]interface{}{"allowed_warnings": 0},
		})
	}
	if len(test) == 0 {
		test = append(test, types.PluginEntry{
			Plugin:  plugins.ShellName,
			Options: map[string]interface{}{"commands": []string{"echo 'add your test commands here'"}},
		})
	}
	cfg.Stages[types.StageTest] = test

	cfg.Stages[types.StageFailure] = []types.PluginEntry{{
		Plugin:  plugins.ShellName,
		Options: map[string]interface{}{"commands": []string{"echo 'build failed'"}},
	}}
	return cfg
}
