// Package facts models host facts and the OS fixtures checks are run against.
package facts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Facts is a nested mapping of fact names to values, shaped like facter
// output: structured facts are nested maps, e.g. facts["os"]["family"].
type Facts map[string]any

// Lookup resolves a dotted path such as "os.release.major".
func (f Facts) Lookup(path string) (any, bool) {
	if f == nil {
		return nil, false
	}
	var cur any = map[string]any(f)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the fact at path formatted as a string, or "".
func (f Facts) String(path string) string {
	v, ok := f.Lookup(path)
	if !ok {
		return ""
	}
	return formatScalar(v)
}

// Flatten returns every leaf fact keyed by its dotted path. Arrays are
// joined with commas.
func (f Facts) Flatten() map[string]string {
	out := map[string]string{}
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		if m, ok := asMap(v); ok {
			for k, child := range m {
				key := k
				if prefix != "" {
					key = prefix + "." + k
				}
				walk(key, child)
			}
			return
		}
		if prefix != "" {
			out[prefix] = formatScalar(v)
		}
	}
	walk("", map[string]any(f))
	return out
}

// Clone deep-copies nested maps and slices.
func (f Facts) Clone() Facts {
	if f == nil {
		return nil
	}
	return Facts(cloneValue(map[string]any(f)).(map[string]any))
}

// Digest is a stable sha256 over the canonical JSON form of the facts.
func (f Facts) Digest() string {
	b, err := json.Marshal(canonical(map[string]any(f)))
	if err != nil {
		b = []byte(fmt.Sprintf("%v", f))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Normalize fills legacy flat facts from structured ones and the reverse, so
// manifests may use either osfamily or os.family. The receiver is not
// modified.
func (f Facts) Normalize() Facts {
	out := f.Clone()
	if out == nil {
		out = Facts{}
	}
	os, _ := asMap(out["os"])
	if os == nil {
		os = map[string]any{}
	}
	release, _ := asMap(os["release"])
	if release == nil {
		release = map[string]any{}
	}

	pairs := []struct {
		legacy string
		get    func() any
		set    func(any)
	}{
		{"osfamily", func() any { return os["family"] }, func(v any) { os["family"] = v }},
		{"operatingsystem", func() any { return os["name"] }, func(v any) { os["name"] = v }},
		{"operatingsystemmajrelease", func() any { return release["major"] }, func(v any) { release["major"] = v }},
		{"operatingsystemrelease", func() any { return release["full"] }, func(v any) { release["full"] = v }},
		{"hardwaremodel", func() any { return os["hardware"] }, func(v any) { os["hardware"] = v }},
		{"architecture", func() any { return os["architecture"] }, func(v any) { os["architecture"] = v }},
	}
	for _, p := range pairs {
		structured := p.get()
		legacy, hasLegacy := out[p.legacy]
		switch {
		case structured != nil && !hasLegacy:
			out[p.legacy] = structured
		case structured == nil && hasLegacy && legacy != nil:
			p.set(legacy)
		}
	}
	if len(release) > 0 {
		os["release"] = release
	}
	if len(os) > 0 {
		out["os"] = os
	}
	if _, ok := out["kernel"]; !ok {
		switch strings.ToLower(formatScalar(os["family"])) {
		case "":
		case "windows":
			out["kernel"] = "windows"
		case "darwin":
			out["kernel"] = "Darwin"
		default:
			out["kernel"] = "Linux"
		}
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Facts:
		return map[string]any(m), true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, formatScalar(item))
		}
		return strings.Join(parts, ",")
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprint(x)
	default:
		return fmt.Sprint(x)
	}
}

func cloneValue(v any) any {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, child := range m {
			out[k] = cloneValue(child)
		}
		return out
	}
	if s, ok := v.([]any); ok {
		out := make([]any, 0, len(s))
		for _, item := range s {
			out = append(out, cloneValue(item))
		}
		return out
	}
	return v
}

// canonical converts nested maps into key-sorted pairs so digests do not
// depend on how a decoder typed the maps.
func canonical(v any) any {
	if m, ok := asMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([][2]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, [2]any{k, canonical(m[k])})
		}
		return out
	}
	if s, ok := v.([]any); ok {
		out := make([]any, 0, len(s))
		for _, item := range s {
			out = append(out, canonical(item))
		}
		return out
	}
	return v
}
