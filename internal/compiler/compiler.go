// Package compiler compiles a module class against a fact set into an
// ordered catalog.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/masterchef/catalogcheck/internal/config"
	"github.com/masterchef/catalogcheck/internal/facts"
	"github.com/masterchef/catalogcheck/internal/planner"
	"github.com/masterchef/catalogcheck/internal/provider"
)

// ModuleRef names the class to compile and the parameters it is declared
// with.
type ModuleRef struct {
	Class  string         `json:"class" yaml:"class"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

func (r ModuleRef) String() string {
	if len(r.Params) == 0 {
		return r.Class
	}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+config.FormatValue(r.Params[k]))
	}
	return r.Class + "(" + strings.Join(parts, ", ") + ")"
}

// Compiler builds a catalog or fails with a *CompileError. Context errors are
// returned as-is.
type Compiler interface {
	Compile(ctx context.Context, ref ModuleRef, f facts.Facts) (*Catalog, error)
}

type Option func(*Engine)

func WithRegistry(r *provider.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine compiles classes of one module.
type Engine struct {
	dir      string
	once     sync.Once
	mod      *config.Module
	loadErr  error
	registry *provider.Registry
	log      *zap.Logger
}

// New returns an engine over an already loaded module.
func New(mod *config.Module, opts ...Option) *Engine {
	e := newEngine(opts)
	e.once.Do(func() {
		if mod == nil {
			e.loadErr = errors.New("module is nil")
		}
		e.mod = mod
	})
	return e
}

// Open returns an engine that loads the module in dir on first use. A load
// failure fails every compile with a syntax error.
func Open(dir string, opts ...Option) *Engine {
	e := newEngine(opts)
	e.dir = dir
	return e
}

func newEngine(opts []Option) *Engine {
	e := &Engine{registry: provider.NewBuiltinRegistry(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Module returns the engine's module, loading it if needed.
func (e *Engine) Module() (*config.Module, error) {
	e.once.Do(func() {
		e.mod, e.loadErr = config.LoadModule(e.dir)
		if e.loadErr != nil {
			e.log.Warn("module load failed", zap.String("dir", e.dir), zap.Error(e.loadErr))
		}
	})
	return e.mod, e.loadErr
}

func (e *Engine) Compile(ctx context.Context, ref ModuleRef, f facts.Facts) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mod, err := e.Module()
	if err != nil {
		return nil, &CompileError{Class: ref.Class, Reason: ReasonSyntax, Message: err.Error(), Err: err}
	}
	normalized := f.Normalize()
	s := &compileState{
		ctx:      ctx,
		mod:      mod,
		registry: e.registry,
		root:     ref.Class,
		facts:    normalized.Flatten(),
		declared: map[string]bool{},
		onStack:  map[string]bool{},
	}
	cat, err := s.compile(ref)
	if err != nil {
		e.log.Debug("compile failed", zap.String("class", ref.Class), zap.Error(err))
		return nil, err
	}
	cat.FactsDigest = normalized.Digest()
	e.log.Debug("compiled catalog",
		zap.String("class", ref.Class),
		zap.Int("resources", len(cat.Resources)),
		zap.Strings("classes", cat.Classes),
	)
	return cat, nil
}

type declaredResource struct {
	class    string
	resource config.Resource
}

type compileState struct {
	ctx       context.Context
	mod       *config.Module
	registry  *provider.Registry
	root      string
	facts     map[string]string
	declared  map[string]bool
	onStack   map[string]bool
	classes   []string
	resources []declaredResource
}

func (s *compileState) fail(reason Reason, resource string, err error, format string, args ...any) *CompileError {
	return &CompileError{Class: s.root, Reason: reason, Resource: resource, Message: fmt.Sprintf(format, args...), Err: err}
}

func (s *compileState) compile(ref ModuleRef) (*Catalog, error) {
	if _, ok := s.mod.Class(ref.Class); !ok {
		return nil, s.fail(ReasonUnresolved, "", nil, "could not find class %q in module %s", ref.Class, s.mod.Metadata.Name)
	}
	params, err := s.declare(ref.Class, ref.Params)
	if err != nil {
		return nil, err
	}
	if err := s.checkDuplicates(); err != nil {
		return nil, err
	}
	resolved, err := s.resolveRelationships()
	if err != nil {
		return nil, err
	}
	plan, err := planner.Build(resolved)
	if err != nil {
		var cycle *planner.CycleError
		if errors.As(err, &cycle) {
			return nil, s.fail(ReasonCycle, "", err, "found %d dependency cycle members: %s", len(cycle.Remaining), strings.Join(s.refsFor(cycle.Remaining), ", "))
		}
		return nil, s.fail(ReasonEvaluation, "", err, "%v", err)
	}

	classByID := make(map[string]string, len(s.resources))
	for _, d := range s.resources {
		classByID[d.resource.ID] = d.class
	}
	out := make([]CatalogResource, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		r := step.Resource
		out = append(out, CatalogResource{
			Order:     step.Order,
			ID:        r.ID,
			Type:      r.Type,
			Title:     r.Title,
			Class:     classByID[r.ID],
			Tags:      r.Tags,
			Params:    r.Params,
			DependsOn: r.DependsOn,
			Require:   r.Require,
			Before:    r.Before,
			Notify:    r.Notify,
			Subscribe: r.Subscribe,
		})
	}
	return &Catalog{
		Class:     ref.Class,
		Classes:   append([]string{}, s.classes...),
		Params:    params,
		Resources: out,
		Edges:     catalogEdges(out),
	}, nil
}

// declare evaluates a class and, depth-first, the classes it includes. A
// class already declared is skipped. It returns the bound parameters.
func (s *compileState) declare(name string, overrides map[string]any) (map[string]any, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.declared[name] {
		return nil, nil
	}
	classRef := Ref("class", name)
	if s.onStack[name] {
		return nil, s.fail(ReasonCycle, classRef, nil, "class %s includes itself", name)
	}
	class, ok := s.mod.Class(name)
	if !ok {
		return nil, s.fail(ReasonUnresolved, classRef, nil, "could not find class %q", name)
	}
	params, err := s.bindParams(class, overrides)
	if err != nil {
		return nil, err
	}
	scope := s.scope(params)

	for _, g := range class.Fail {
		if !config.EvalWhen(g.When, scope) {
			continue
		}
		msg, rerr := config.Render(g.Message, scope)
		if rerr != nil {
			msg = g.Message
		}
		return nil, s.fail(ReasonEvaluation, classRef, nil, "%s", msg)
	}

	s.onStack[name] = true
	for _, inc := range class.Includes {
		if _, err := s.declare(inc, nil); err != nil {
			return nil, err
		}
	}
	delete(s.onStack, name)
	s.declared[name] = true
	s.classes = append(s.classes, name)

	expanded, err := config.Expand(class.Resources, scope)
	if err != nil {
		return nil, s.fail(ReasonEvaluation, classRef, err, "%v", err)
	}
	for _, r := range expanded {
		if strings.TrimSpace(r.Title) == "" {
			r.Title = r.ID
		}
		h, ok := s.registry.Lookup(r.Type)
		if !ok {
			return nil, s.fail(ReasonUnresolved, Ref(r.Type, r.Title), nil, "unknown resource type %q", r.Type)
		}
		validated, err := h.Validate(r)
		if err != nil {
			return nil, s.fail(ReasonParameter, Ref(r.Type, r.Title), err, "%v", err)
		}
		r.Params = validated
		s.resources = append(s.resources, declaredResource{class: name, resource: r})
	}
	return params, nil
}

func (s *compileState) bindParams(class config.Class, overrides map[string]any) (map[string]any, error) {
	classRef := Ref("class", class.Name)
	known := make(map[string]struct{}, len(class.Params))
	for _, p := range class.Params {
		known[p.Name] = struct{}{}
	}
	unknown := make([]string, 0)
	for k := range overrides {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, s.fail(ReasonParameter, classRef, nil, "invalid parameter %s", strings.Join(unknown, ", "))
	}

	out := make(map[string]any, len(class.Params))
	for _, p := range class.Params {
		typ, err := config.ParseParamType(p.Type)
		if err != nil {
			return nil, s.fail(ReasonType, classRef, err, "parameter %q: %v", p.Name, err)
		}
		v, set := overrides[p.Name]
		if !set {
			if p.Default == nil {
				return nil, s.fail(ReasonParameter, classRef, nil, "expects a value for parameter %q", p.Name)
			}
			v = p.Default
		}
		coerced, err := typ.Coerce(v)
		if err != nil {
			return nil, s.fail(ReasonType, classRef, err, "parameter %q expects %s: %v", p.Name, typ, err)
		}
		out[p.Name] = coerced
	}
	return out, nil
}

// scope is the flattened facts plus params.<name> for the class's params.
func (s *compileState) scope(params map[string]any) map[string]string {
	out := make(map[string]string, len(s.facts)+len(params))
	for k, v := range s.facts {
		out[k] = v
	}
	for k, v := range params {
		out["params."+k] = config.FormatValue(v)
	}
	return out
}

func (s *compileState) checkDuplicates() error {
	ids := map[string]declaredResource{}
	refs := map[string]declaredResource{}
	for _, d := range s.resources {
		r := d.resource
		if prev, ok := ids[r.ID]; ok {
			return s.fail(ReasonDuplicate, Ref(r.Type, r.Title), nil, "resource id %q is already declared in class %s", r.ID, prev.class)
		}
		ids[r.ID] = d
		key := Ref(r.Type, r.Title)
		if prev, ok := refs[key]; ok {
			return s.fail(ReasonDuplicate, key, nil, "duplicate declaration: %s is already declared in class %s (id %q)", key, prev.class, prev.resource.ID)
		}
		refs[key] = d
	}
	return nil
}

// resolveRelationships rewrites every relationship reference, given as an id
// or as Type[title], to a resource id.
func (s *compileState) resolveRelationships() ([]config.Resource, error) {
	ids := make(map[string]struct{}, len(s.resources))
	byRef := make(map[string]string, len(s.resources))
	for _, d := range s.resources {
		ids[d.resource.ID] = struct{}{}
		byRef[d.resource.Type+"\x00"+d.resource.Title] = d.resource.ID
	}
	out := make([]config.Resource, 0, len(s.resources))
	for _, d := range s.resources {
		r := d.resource
		var err error
		resolve := func(refs []string) []string {
			if len(refs) == 0 || err != nil {
				return refs
			}
			resolved := make([]string, 0, len(refs))
			for _, ref := range refs {
				if _, ok := ids[ref]; ok {
					resolved = append(resolved, ref)
					continue
				}
				if typ, title, ok := parseRef(ref); ok {
					if id, found := byRef[typ+"\x00"+title]; found {
						resolved = append(resolved, id)
						continue
					}
				}
				err = s.fail(ReasonUnresolved, Ref(r.Type, r.Title), nil, "could not find resource %q for relationship", ref)
				return refs
			}
			return resolved
		}
		r.DependsOn = resolve(r.DependsOn)
		r.Require = resolve(r.Require)
		r.Before = resolve(r.Before)
		r.Notify = resolve(r.Notify)
		r.Subscribe = resolve(r.Subscribe)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *compileState) refsFor(ids []string) []string {
	byID := make(map[string]config.Resource, len(s.resources))
	for _, d := range s.resources {
		byID[d.resource.ID] = d.resource
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, Ref(r.Type, r.Title))
			continue
		}
		out = append(out, id)
	}
	return out
}
