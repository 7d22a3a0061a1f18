package config

import (
	"github.com/censor-ci/censor/pkg/plugins"
	"github.com/censor-ci/censor/pkg/types"
)

// Plan is the resolved, immutable list of plugin entries per stage
type Plan struct {
	stages   map[types.Stage][]types.PluginEntry
	settings types.BuildSettings
}

// Stage returns a copy of the entries configured for stage
func (p *Plan) Stage(stage types.Stage) []types.PluginEntry {
	entries := p.stages[stage]
	out := make([]types.PluginEntry, len(entries))
	for i, e := range entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Settings returns the project-wide build settings
func (p *Plan) Settings() types.BuildSettings {
	s := p.settings
	s.Ignore = append([]string(nil), p.settings.Ignore...)
	return s
}

// Len returns the number of plugin entries over all stages
func (p *Plan) Len() int {
	n := 0
	for _, entries := range p.stages {
		n += len(entries)
	}
	return n
}

// Uses reports whether any stage runs the named plugin
func (p *Plan) Uses(plugin string) bool {
	for _, entries := range p.stages {
		for _, e := range entries {
			if e.Plugin == plugin {
				return true
			}
		}
	}
	return false
}

// Resolver turns a project document into a Plan using a plugin registry
type Resolver struct {
	registry *plugins.Registry
}

// NewResolver creates a resolver bound to registry
func NewResolver(registry *plugins.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve builds the stage plan. Explicit entries are used verbatim; in
// zero-config mode a Test stage without entries receives every
// registered zero-config plugin whose detector matches buildPath. Every
// plugin name is checked against the registry, so unknown names fail
// here before any stage runs.
func (r *Resolver) Resolve(cfg *types.ProjectConfig, buildPath string) (*Plan, error) {
	if cfg == nil {
		cfg = &types.ProjectConfig{ZeroConfig: true}
	}
	if err := NewManager().ValidateConfig(cfg); err != nil {
		return nil, err
	}

	plan := &Plan{
		stages:   make(map[types.Stage][]types.PluginEntry, len(types.Stages)),
		settings: cfg.BuildSettings,
	}
	plan.settings.Ignore = append([]string(nil), cfg.BuildSettings.Ignore...)

	for _, stage := range types.Stages {
		entries := cfg.Stages[stage]

		if stage == types.StageTest && cfg.ZeroConfig && len(entries) == 0 {
			for _, name := range r.registry.ZeroConfigPlugins(buildPath) {
				entries = append(entries, types.PluginEntry{
					Plugin:  name,
					Options: map[string]interface{}{"zero_config": true},
				})
			}
		}

		for _, e := range entries {
			if _, err := r.registry.Lookup(e.Plugin); err != nil {
				return nil, err
			}
			plan.stages[stage] = append(plan.stages[stage], copyEntry(e))
		}
	}

	return plan, nil
}

func copyEntry(e types.PluginEntry) types.PluginEntry {
	opts := make(map[string]interface{}, len(e.Options))
	for k, v := range e.Options {
		opts[k] = v
	}
	return types.PluginEntry{Plugin: e.Plugin, Options: opts}
}
