package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var classNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(::[a-z][a-z0-9_]*)*$`)

// ValidClassName reports whether name is a well-formed class name.
func ValidClassName(name string) bool {
	return classNamePattern.MatchString(name)
}

func Validate(mod *Module) error {
	if mod == nil {
		return fmt.Errorf("module is nil")
	}
	for i := range mod.Metadata.OperatingSystemSupport {
		s := &mod.Metadata.OperatingSystemSupport[i]
		s.OperatingSystem = strings.TrimSpace(s.OperatingSystem)
		if s.OperatingSystem == "" {
			return fmt.Errorf("metadata operatingsystem_support[%d].operatingsystem is required", i)
		}
		releases := make([]string, 0, len(s.Releases))
		for _, r := range s.Releases {
			if r = strings.TrimSpace(r); r != "" {
				releases = append(releases, r)
			}
		}
		s.Releases = releases
	}

	classSet := map[string]struct{}{}
	for i := range mod.Classes {
		c := &mod.Classes[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return fmt.Errorf("classes[%d].name is required", i)
		}
		if !ValidClassName(c.Name) {
			return fmt.Errorf("class name %q is not a valid class name", c.Name)
		}
		if _, ok := classSet[c.Name]; ok {
			return fmt.Errorf("duplicate class %q", c.Name)
		}
		classSet[c.Name] = struct{}{}
		if err := validateClass(c); err != nil {
			return err
		}
	}
	return nil
}

func validateClass(c *Class) error {
	paramSet := map[string]struct{}{}
	for i := range c.Params {
		p := &c.Params[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return fmt.Errorf("class %q params[%d].name is required", c.Name, i)
		}
		if strings.ContainsAny(p.Name, ". ") {
			return fmt.Errorf("class %q param %q must be a simple token", c.Name, p.Name)
		}
		if _, ok := paramSet[p.Name]; ok {
			return fmt.Errorf("class %q has duplicate param %q", c.Name, p.Name)
		}
		paramSet[p.Name] = struct{}{}
		typ, err := ParseParamType(p.Type)
		if err != nil {
			return fmt.Errorf("class %q param %q: %w", c.Name, p.Name, err)
		}
		p.Type = typ.String()
		if p.Default != nil {
			if _, err := typ.Coerce(p.Default); err != nil {
				return fmt.Errorf("class %q param %q default: %w", c.Name, p.Name, err)
			}
		}
	}

	for i, inc := range c.Includes {
		inc = strings.TrimSpace(inc)
		if !ValidClassName(inc) {
			return fmt.Errorf("class %q includes[%d] %q is not a valid class name", c.Name, i, inc)
		}
		c.Includes[i] = inc
	}

	for i := range c.Fail {
		g := &c.Fail[i]
		g.When = strings.TrimSpace(g.When)
		if g.When == "" {
			return fmt.Errorf("class %q fail[%d].when is required", c.Name, i)
		}
		g.Message = strings.TrimSpace(g.Message)
		if g.Message == "" {
			g.Message = fmt.Sprintf("class %s refused to compile: %s", c.Name, g.When)
		}
	}

	resSet := map[string]struct{}{}
	for i := range c.Resources {
		r := &c.Resources[i]
		r.ID = strings.TrimSpace(r.ID)
		if r.ID == "" {
			return fmt.Errorf("class %q resources[%d].id is required", c.Name, i)
		}
		if _, ok := resSet[r.ID]; ok {
			return fmt.Errorf("class %q has duplicate resource id %q", c.Name, r.ID)
		}
		resSet[r.ID] = struct{}{}
		r.Type = strings.ToLower(strings.TrimSpace(r.Type))
		if r.Type == "" {
			return fmt.Errorf("resource %q type is required", r.ID)
		}
		r.Title = strings.TrimSpace(r.Title)
		r.When = strings.TrimSpace(r.When)
		if err := normalizeMatrix(&r.Matrix, fmt.Sprintf("resource %q", r.ID)); err != nil {
			return err
		}
		if err := normalizeLoop(r, fmt.Sprintf("resource %q", r.ID)); err != nil {
			return err
		}
		r.DependsOn = trimRefs(r.DependsOn)
		r.Require = trimRefs(r.Require)
		r.Before = trimRefs(r.Before)
		r.Notify = trimRefs(r.Notify)
		r.Subscribe = trimRefs(r.Subscribe)
		if len(r.Tags) > 0 {
			seenTags := map[string]struct{}{}
			clean := make([]string, 0, len(r.Tags))
			for _, tag := range r.Tags {
				tag = strings.ToLower(strings.TrimSpace(tag))
				if tag == "" {
					continue
				}
				if _, ok := seenTags[tag]; ok {
					continue
				}
				seenTags[tag] = struct{}{}
				clean = append(clean, tag)
			}
			sort.Strings(clean)
			r.Tags = clean
		}
	}
	return nil
}

func trimRefs(refs []string) []string {
	if len(refs) == 0 {
		return refs
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

func normalizeMatrix(matrix *map[string][]string, owner string) error {
	if matrix == nil || len(*matrix) == 0 {
		return nil
	}
	out := map[string][]string{}
	for key, values := range *matrix {
		name := strings.TrimSpace(key)
		if name == "" {
			return fmt.Errorf("%s matrix contains an empty key", owner)
		}
		seen := map[string]struct{}{}
		clean := make([]string, 0, len(values))
		for _, value := range values {
			item := strings.TrimSpace(value)
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			clean = append(clean, item)
		}
		if len(clean) == 0 {
			return fmt.Errorf("%s matrix key %q must include at least one non-empty value", owner, name)
		}
		sort.Strings(clean)
		out[name] = clean
	}
	*matrix = out
	return nil
}

func normalizeLoop(resource *Resource, owner string) error {
	if resource == nil {
		return nil
	}
	loop := make([]string, 0, len(resource.Loop))
	seen := map[string]struct{}{}
	for _, value := range resource.Loop {
		item := strings.TrimSpace(value)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		loop = append(loop, item)
	}
	resource.Loop = loop
	resource.LoopVar = strings.TrimSpace(resource.LoopVar)
	if len(resource.Loop) == 0 {
		resource.LoopVar = ""
		return nil
	}
	if resource.LoopVar == "" {
		resource.LoopVar = "item"
	}
	if strings.Contains(resource.LoopVar, ".") || strings.Contains(resource.LoopVar, " ") {
		return fmt.Errorf("%s loop_var %q must be a simple token", owner, resource.LoopVar)
	}
	if _, exists := resource.Matrix[resource.LoopVar]; exists {
		return fmt.Errorf("%s loop_var %q conflicts with matrix key", owner, resource.LoopVar)
	}
	return nil
}
