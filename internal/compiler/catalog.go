package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/masterchef/catalogcheck/internal/config"
	"github.com/masterchef/catalogcheck/internal/planner"
)

// Catalog is the compiled, ordered set of resources for one class and one
// fact set. Relationships hold resolved resource ids.
type Catalog struct {
	Class       string            `json:"class" yaml:"class"`
	Classes     []string          `json:"classes" yaml:"classes"`
	Params      map[string]any    `json:"params,omitempty" yaml:"params,omitempty"`
	FactsDigest string            `json:"facts_digest" yaml:"facts_digest"`
	Resources   []CatalogResource `json:"resources" yaml:"resources"`
	Edges       []planner.Edge    `json:"edges,omitempty" yaml:"edges,omitempty"`
}

type CatalogResource struct {
	Order     int            `json:"order" yaml:"order"`
	ID        string         `json:"id" yaml:"id"`
	Type      string         `json:"type" yaml:"type"`
	Title     string         `json:"title" yaml:"title"`
	Class     string         `json:"class" yaml:"class"`
	Tags      []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Require   []string       `json:"require,omitempty" yaml:"require,omitempty"`
	Before    []string       `json:"before,omitempty" yaml:"before,omitempty"`
	Notify    []string       `json:"notify,omitempty" yaml:"notify,omitempty"`
	Subscribe []string       `json:"subscribe,omitempty" yaml:"subscribe,omitempty"`
}

// Ref renders the resource as Type[title].
func (r CatalogResource) Ref() string { return Ref(r.Type, r.Title) }

func (r CatalogResource) resource() config.Resource {
	return config.Resource{
		ID:        r.ID,
		Type:      r.Type,
		Title:     r.Title,
		Tags:      r.Tags,
		Params:    r.Params,
		DependsOn: r.DependsOn,
		Require:   r.Require,
		Before:    r.Before,
		Notify:    r.Notify,
		Subscribe: r.Subscribe,
	}
}

var refPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*(?:::[A-Za-z][A-Za-z0-9_]*)*)\[(.+)\]$`)

// Ref formats a resource reference with each type segment capitalized, e.g.
// Package[yum-utils].
func Ref(resourceType, title string) string {
	segments := strings.Split(resourceType, "::")
	for i, s := range segments {
		if s != "" {
			segments[i] = strings.ToUpper(s[:1]) + s[1:]
		}
	}
	return strings.Join(segments, "::") + "[" + title + "]"
}

// parseRef splits Type[title] into a lowercased type and the title.
func parseRef(ref string) (string, string, bool) {
	m := refPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[1]), m[2], true
}

// Resource finds a resource by id or by Type[title].
func (c *Catalog) Resource(ref string) (CatalogResource, bool) {
	if c == nil {
		return CatalogResource{}, false
	}
	typ, title, isRef := parseRef(ref)
	for _, r := range c.Resources {
		if r.ID == ref {
			return r, true
		}
		if isRef && r.Type == typ && r.Title == title {
			return r, true
		}
	}
	return CatalogResource{}, false
}

func (c *Catalog) Contains(ref string) bool {
	_, ok := c.Resource(ref)
	return ok
}

// Plan returns the catalog as a planner plan, for graph output, summaries and
// snapshots.
func (c *Catalog) Plan() *planner.Plan {
	p := &planner.Plan{Steps: make([]planner.Step, 0, len(c.Resources))}
	for _, r := range c.Resources {
		p.Steps = append(p.Steps, planner.Step{Order: r.Order, Class: r.Class, Resource: r.resource()})
	}
	return p
}

// Digest is a sha256 over the catalog's JSON form. Two compiles of the same
// class and facts must produce the same digest.
func (c *Catalog) Digest() string {
	b, err := json.Marshal(c)
	if err != nil {
		b = []byte(fmt.Sprintf("%#v", c))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Marshal renders the catalog as json, yaml or dot.
func (c *Catalog) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return json.MarshalIndent(c, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(c)
	case "dot":
		return []byte(planner.ToDOT(c.Plan())), nil
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (want json, yaml or dot)", format)
	}
}

func catalogEdges(resources []CatalogResource) []planner.Edge {
	seen := map[planner.Edge]struct{}{}
	out := make([]planner.Edge, 0)
	for _, r := range resources {
		for _, e := range planner.Edges(r.resource()) {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
