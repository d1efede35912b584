package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const manifestsDir = "manifests"

var metadataFiles = []string{"metadata.json", "metadata.yaml", "metadata.yml"}

// LoadModule reads the metadata and every manifest under dir/manifests,
// composes them and validates the result.
func LoadModule(dir string) (*Module, error) {
	resolved, err := filepath.Abs(dir)
	if err != nil {
		resolved = dir
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("module path %s is not a directory", resolved)
	}

	meta, err := loadMetadata(resolved)
	if err != nil {
		return nil, err
	}
	mod := &Module{Dir: resolved, Metadata: meta}

	paths, err := manifestPaths(filepath.Join(resolved, manifestsDir))
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		m, err := loadComposedManifest(path, map[string]bool{})
		if err != nil {
			return nil, err
		}
		mergeClasses(&mod.Classes, m.Classes)
	}
	if err := Validate(mod); err != nil {
		return nil, err
	}
	return mod, nil
}

func manifestPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("module has no %s directory", manifestsDir)
		}
		return nil, fmt.Errorf("read manifests dir: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func loadMetadata(dir string) (Metadata, error) {
	for _, name := range metadataFiles {
		path := filepath.Join(dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Metadata{}, fmt.Errorf("read metadata: %w", err)
		}
		var meta Metadata
		if err := decode(path, b, &meta); err != nil {
			return Metadata{}, fmt.Errorf("parse metadata %s: %w", name, err)
		}
		return meta, nil
	}
	return Metadata{Name: filepath.Base(dir)}, nil
}

func loadComposedManifest(path string, stack map[string]bool) (*Manifest, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		resolved = path
	}
	if stack[resolved] {
		return nil, fmt.Errorf("manifest composition cycle detected at %s", resolved)
	}
	stack[resolved] = true
	defer delete(stack, resolved)

	raw, err := parseManifestFile(resolved)
	if err != nil {
		return nil, err
	}
	merged := &Manifest{}
	baseDir := filepath.Dir(resolved)

	for _, include := range append([]string{}, raw.Includes...) {
		child, err := loadComposedManifest(resolveManifestRef(baseDir, include), stack)
		if err != nil {
			return nil, err
		}
		mergeManifest(merged, child)
	}

	current := cloneManifest(raw)
	current.Includes = nil
	current.Overlays = nil
	mergeManifest(merged, &current)

	for _, overlay := range append([]string{}, raw.Overlays...) {
		child, err := loadComposedManifest(resolveManifestRef(baseDir, overlay), stack)
		if err != nil {
			return nil, err
		}
		mergeManifest(merged, child)
	}
	return merged, nil
}

func parseManifestFile(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := decode(path, b, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest %s: %w", filepath.Base(path), err)
	}
	if strings.TrimSpace(m.Version) == "" {
		return Manifest{}, fmt.Errorf("manifest %s: version is required", filepath.Base(path))
	}
	return m, nil
}

func decode(path string, b []byte, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Unmarshal(b, out)
	default:
		return yaml.Unmarshal(b, out)
	}
}

func resolveManifestRef(baseDir, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ref
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(baseDir, ref)
}

func mergeManifest(dst *Manifest, src *Manifest) {
	if dst == nil || src == nil {
		return
	}
	if strings.TrimSpace(src.Version) != "" {
		dst.Version = src.Version
	}
	mergeClasses(&dst.Classes, src.Classes)
}

func mergeClasses(dst *[]Class, src []Class) {
	if dst == nil {
		return
	}
	index := map[string]int{}
	for i, c := range *dst {
		index[c.Name] = i
	}
	for _, c := range src {
		if i, ok := index[c.Name]; ok {
			(*dst)[i] = cloneClass(c)
			continue
		}
		index[c.Name] = len(*dst)
		*dst = append(*dst, cloneClass(c))
	}
}

func cloneManifest(in Manifest) Manifest {
	out := in
	out.Includes = append([]string{}, in.Includes...)
	out.Overlays = append([]string{}, in.Overlays...)
	out.Classes = make([]Class, 0, len(in.Classes))
	for _, c := range in.Classes {
		out.Classes = append(out.Classes, cloneClass(c))
	}
	return out
}

func cloneClass(in Class) Class {
	out := in
	out.Params = append([]Param{}, in.Params...)
	out.Includes = append([]string{}, in.Includes...)
	out.Fail = append([]Guard{}, in.Fail...)
	out.Resources = make([]Resource, 0, len(in.Resources))
	for _, r := range in.Resources {
		out.Resources = append(out.Resources, cloneResource(r))
	}
	return out
}

func cloneResource(in Resource) Resource {
	out := in
	out.DependsOn = append([]string{}, in.DependsOn...)
	out.Require = append([]string{}, in.Require...)
	out.Before = append([]string{}, in.Before...)
	out.Notify = append([]string{}, in.Notify...)
	out.Subscribe = append([]string{}, in.Subscribe...)
	out.Tags = append([]string{}, in.Tags...)
	out.Loop = append([]string{}, in.Loop...)
	if in.Matrix != nil {
		out.Matrix = make(map[string][]string, len(in.Matrix))
		for k, v := range in.Matrix {
			out.Matrix[k] = append([]string{}, v...)
		}
	}
	if in.Params != nil {
		out.Params = make(map[string]any, len(in.Params))
		for k, v := range in.Params {
			out.Params[k] = v
		}
	}
	return out
}
