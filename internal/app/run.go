package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vk/assembly/internal/builder"
	"github.com/vk/assembly/internal/ctxlog"
	"github.com/vk/assembly/internal/datastore"
	"github.com/vk/assembly/internal/model"
)

// Run loads the component manifests, builds and starts the root component
// tree, and writes the resulting instance tree to the output as JSON.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	defer a.runtime.Close()

	if a.config.ModulesPath != "" {
		if err := a.runtime.Registry.LoadManifests(ctx, a.config.ModulesPath); err != nil {
			return fmt.Errorf("load manifests: %w", err)
		}
	}

	rootCfg, err := a.loadRootConfig()
	if err != nil {
		return err
	}

	a.logger.Info("Starting root component.", "ref", a.config.RootRef)
	root, err := a.runtime.Builder.Start(ctx, a.config.RootRef, rootCfg, nil)
	if err != nil {
		return fmt.Errorf("start root component %s: %w", a.config.RootRef, err)
	}

	enc := json.NewEncoder(a.outW)
	enc.SetIndent("", "  ")
	return enc.Encode(renderInstance(root, map[*model.Instance]bool{}))
}

// loadRootConfig reads the root configuration file, when one was given.
func (a *App) loadRootConfig() (map[string]any, error) {
	if a.config.ConfigPath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(a.config.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read root config: %w", err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse root config %s: %w", a.config.ConfigPath, err)
	}
	return cfg, nil
}

// renderInstance projects a live instance onto plain JSON-encodable data.
// Instances already rendered higher in the walk collapse to their ID, which
// also terminates any aliasing in the tree.
func renderInstance(inst *model.Instance, seen map[*model.Instance]bool) map[string]any {
	if seen[inst] {
		return map[string]any{"id": inst.ID}
	}
	seen[inst] = true

	out := map[string]any{
		"id":    inst.ID,
		"index": inst.Index.String(),
	}
	if role := inst.Role(); role != "" {
		out["role"] = role
	}
	cfg := make(map[string]any, len(inst.Config))
	for k, v := range inst.Config {
		cfg[k] = renderValue(v, seen)
	}
	out["config"] = cfg
	return out
}

func renderValue(v any, seen map[*model.Instance]bool) any {
	switch t := v.(type) {
	case *model.Instance:
		return renderInstance(t, seen)
	case *model.Component:
		return "component:" + t.Index.String()
	case *builder.Proxy:
		return "proxy"
	case *datastore.Datastore:
		return t.Settings()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = renderValue(e, seen)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = renderValue(e, seen)
		}
		return out
	default:
		if _, err := json.Marshal(v); err != nil {
			return fmt.Sprintf("%v", v)
		}
		return v
	}
}
