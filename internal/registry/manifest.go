package registry

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/assembly/internal/ctxlog"
	"github.com/vk/assembly/internal/fsutil"
	"github.com/vk/assembly/internal/model"
	"github.com/zclconf/go-cty/cty"
)

// manifestFile is the HCL schema of a component manifest.
type manifestFile struct {
	Components []*componentBlock `hcl:"component,block"`
	Remain     hcl.Body          `hcl:",remain"`
}

type componentBlock struct {
	Name     string    `hcl:"name,label"`
	Version  string    `hcl:"version,optional"`
	Role     string    `hcl:"role,optional"`
	Defaults cty.Value `hcl:"defaults,optional"`
}

// LoadManifests walks a directory for .hcl component manifests and registers
// every component block found in them.
func (r *Registry) LoadManifests(ctx context.Context, dir string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading component manifests...", "path", dir)

	filePaths, err := fsutil.FindFilesByExtension(dir, ".hcl")
	if err != nil {
		logger.Error("Failed to walk manifest directory", "path", dir, "error", err)
		return err
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl manifest files found in path", "path", dir)
		return nil
	}

	parser := hclparse.NewParser()
	registered := 0
	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return fmt.Errorf("failed to parse manifest %s: %w", filePath, diags)
		}
		n, err := r.registerManifest(ctx, hclFile.Body, filePath)
		if err != nil {
			return err
		}
		registered += n
	}

	logger.Info("Registry loaded manifests.", "files", len(filePaths), "components", registered)
	return nil
}

// RegisterManifestSource parses manifest text held in memory, for callers
// that already have the bytes (tests, loaded resources).
func (r *Registry) RegisterManifestSource(ctx context.Context, src []byte, filename string) error {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse manifest %s: %w", filename, diags)
	}
	_, err := r.registerManifest(ctx, hclFile.Body, filename)
	return err
}

func (r *Registry) registerManifest(ctx context.Context, body hcl.Body, filename string) (int, error) {
	logger := ctxlog.FromContext(ctx)

	var file manifestFile
	if diags := gohcl.DecodeBody(body, nil, &file); diags.HasErrors() {
		return 0, fmt.Errorf("failed to decode manifest %s: %w", filename, diags)
	}

	for _, block := range file.Components {
		defaults, err := defaultsFromCty(block.Defaults)
		if err != nil {
			return 0, fmt.Errorf("manifest %s, component %q: %w", filename, block.Name, err)
		}
		def := &model.Component{
			Index:    model.Index{Name: block.Name, Version: block.Version},
			Role:     block.Role,
			Defaults: defaults,
		}
		if _, err := r.Register(def, nil); err != nil {
			return 0, err
		}
		logger.Debug("Registered component from manifest.", "index", def.Index.String(), "file", filename)
	}
	return len(file.Components), nil
}

// defaultsFromCty converts a manifest defaults object into the native map
// form the merge law operates on.
func defaultsFromCty(val cty.Value) (map[string]any, error) {
	if val == cty.NilVal || val.IsNull() {
		return nil, nil
	}
	converted, err := ctyValueToGo(val)
	if err != nil {
		return nil, err
	}
	m, ok := converted.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("defaults must be an object, got %T", converted)
	}
	return m, nil
}

// ctyValueToGo converts a cty.Value into plain Go values.
func ctyValueToGo(val cty.Value) (any, error) {
	if !val.IsKnown() || val.IsNull() {
		return nil, nil
	}
	if val.Type().IsPrimitiveType() {
		switch val.Type() {
		case cty.String:
			return val.AsString(), nil
		case cty.Number:
			f, _ := val.AsBigFloat().Float64()
			return f, nil
		case cty.Bool:
			return val.True(), nil
		default:
			return nil, fmt.Errorf("unsupported primitive type: %s", val.Type().FriendlyName())
		}
	}
	if val.Type().IsObjectType() || val.Type().IsMapType() {
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			converted, err := ctyValueToGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = converted
		}
		return out, nil
	}
	if val.Type().IsTupleType() || val.Type().IsListType() || val.Type().IsSetType() {
		var out []any
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			converted, err := ctyValueToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported cty.Type for conversion: %s", val.Type().FriendlyName())
}
