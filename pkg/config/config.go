// Package config loads the per-project pipeline document, resolves it into
// a stage plan and holds the application settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/censor-ci/censor/pkg/types"
)

// ConfigFileNames lists the project document names looked up in a
// checkout, in order of preference
var ConfigFileNames = []string{".censor.yml", ".censor.yaml", ".censor.json", ".php-censor.yml"}

// Manager handles project configuration documents
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// FindConfig returns the project document inside buildPath, or "" when the
// checkout has none
func (m *Manager) FindConfig(buildPath string) string {
	for _, name := range ConfigFileNames {
		p := filepath.Join(buildPath, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// LoadProjectConfig loads the document of the checkout at buildPath. A
// checkout without a document runs in zero-config mode.
func (m *Manager) LoadProjectConfig(buildPath string) (*types.ProjectConfig, error) {
	path := m.FindConfig(buildPath)
	if path == "" {
		return &types.ProjectConfig{ZeroConfig: true, Stages: map[types.Stage][]types.PluginEntry{}}, nil
	}
	return m.LoadConfig(path)
}

// LoadConfig loads a project document from a file
func (m *Manager) LoadConfig(path string) (*types.ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := m.ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// ParseConfig parses a YAML or JSON project document.
//
// Stages may be given under "stages" or as top-level keys. Each stage is
// either a list of {plugin, options} entries or a mapping of plugin name
// to options; both keep document order.
func (m *Manager) ParseConfig(data []byte) (*types.ProjectConfig, error) {
	cfg := &types.ProjectConfig{Stages: map[types.Stage][]types.PluginEntry{}}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		// empty document
		return cfg, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return cfg, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document must be a mapping", ErrInvalidConfig)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]

		switch key {
		case "zero_config":
			if err := value.Decode(&cfg.ZeroConfig); err != nil {
				return nil, fmt.Errorf("%w: zero_config must be a boolean", ErrInvalidConfig)
			}
		case "build_settings":
			if err := value.Decode(&cfg.BuildSettings); err != nil {
				return nil, fmt.Errorf("%w: build_settings: %v", ErrInvalidConfig, err)
			}
		case "stages":
			if value.Kind != yaml.MappingNode {
				if isNull(value) {
					continue
				}
				return nil, fmt.Errorf("%w: stages must be a mapping", ErrInvalidConfig)
			}
			for j := 0; j+1 < len(value.Content); j += 2 {
				if err := addStage(cfg, value.Content[j].Value, value.Content[j+1]); err != nil {
					return nil, err
				}
			}
		default:
			if err := addStage(cfg, key, value); err != nil {
				return nil, err
			}
		}
	}

	return cfg, nil
}

// ValidateConfig checks a document independently of any registry
func (m *Manager) ValidateConfig(cfg *types.ProjectConfig) error {
	for stage, entries := range cfg.Stages {
		if _, err := types.ParseStage(string(stage)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for i, e := range entries {
			if e.Plugin == "" {
				return fmt.Errorf("%w: stage %s entry %d has no plugin name", ErrInvalidConfig, stage, i)
			}
		}
	}
	if cfg.BuildSettings.CloneDepth < 0 {
		return fmt.Errorf("%w: clone_depth must not be negative", ErrInvalidConfig)
	}
	if cfg.BuildSettings.CommandTimeout < 0 {
		return fmt.Errorf("%w: command_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

func addStage(cfg *types.ProjectConfig, name string, node *yaml.Node) error {
	stage, err := types.ParseStage(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, exists := cfg.Stages[stage]; exists {
		return fmt.Errorf("%w: stage %s is defined twice", ErrInvalidConfig, stage)
	}

	entries, err := parseEntries(node)
	if err != nil {
		return fmt.Errorf("%w: stage %s: %v", ErrInvalidConfig, stage, err)
	}
	cfg.Stages[stage] = entries
	return nil
}

func parseEntries(node *yaml.Node) ([]types.PluginEntry, error) {
	entries := []types.PluginEntry{}

	switch {
	case isNull(node):
		return entries, nil

	case node.Kind == yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			entry, err := namedEntry(node.Content[i].Value, node.Content[i+1])
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		return entries, nil

	case node.Kind == yaml.SequenceNode:
		for idx, item := range node.Content {
			entry, err := listEntry(item)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", idx, err)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	}

	return nil, errors.New("must be a list of plugins or a mapping of plugin names to options")
}

// listEntry accepts {plugin: name, options: {...}} or a single-key
// {name: options} mapping
func listEntry(item *yaml.Node) (types.PluginEntry, error) {
	if item.Kind == yaml.ScalarNode {
		return types.PluginEntry{Plugin: item.Value, Options: map[string]interface{}{}}, nil
	}
	if item.Kind != yaml.MappingNode {
		return types.PluginEntry{}, errors.New("plugin entry must be a mapping")
	}

	if hasKey(item, "plugin") {
		var entry types.PluginEntry
		if err := item.Decode(&entry); err != nil {
			return types.PluginEntry{}, err
		}
		if entry.Plugin == "" {
			return types.PluginEntry{}, errors.New("plugin name is empty")
		}
		if entry.Options == nil {
			entry.Options = map[string]interface{}{}
		}
		return entry, nil
	}

	if len(item.Content) != 2 {
		return types.PluginEntry{}, errors.New("plugin entry needs a \"plugin\" key")
	}
	return namedEntry(item.Content[0].Value, item.Content[1])
}

func namedEntry(name string, optionsNode *yaml.Node) (types.PluginEntry, error) {
	if name == "" {
		return types.PluginEntry{}, errors.New("plugin name is empty")
	}
	opts := map[string]interface{}{}
	if !isNull(optionsNode) {
		if optionsNode.Kind != yaml.MappingNode {
			return types.PluginEntry{}, fmt.Errorf("options of %s must be a mapping", name)
		}
		if err := optionsNode.Decode(&opts); err != nil {
			return types.PluginEntry{}, fmt.Errorf("options of %s: %w", name, err)
		}
	}
	return types.PluginEntry{Plugin: name, Options: opts}, nil
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}
