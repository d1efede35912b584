// Package checktest runs per-fixture compile checks from go test, one subtest
// per supported OS fixture.
package checktest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/config"
	"github.com/masterchef/catalogcheck/internal/facts"
)

// Env is a loaded module with its fixture selection.
type Env struct {
	Module    *config.Module
	Compiler  compiler.Compiler
	Selection facts.Selection
}

// Load reads the module and fact sets and selects the fixtures matching the
// module's declared OS support.
func Load(t testing.TB, moduleDir, factsDir string, filter facts.Filter) *Env {
	t.Helper()
	mod, err := config.LoadModule(moduleDir)
	require.NoError(t, err, "load module %s", moduleDir)
	db, err := facts.LoadDB(factsDir)
	require.NoError(t, err, "load facts %s", factsDir)
	return &Env{
		Module:    mod,
		Compiler:  compiler.Cached(compiler.New(mod)),
		Selection: db.OnSupportedOS(mod.Metadata.OperatingSystemSupport, filter),
	}
}

// Each runs fn in a subtest named "on <fixture>" for every selected fixture.
// A selection with no fixtures fails the test.
func (e *Env) Each(t *testing.T, fn func(t *testing.T, c compiler.Compiler, fx facts.Fixture)) {
	t.Helper()
	for _, m := range e.Selection.Missing {
		t.Logf("no fact set for supported platform %s", m)
	}
	if len(e.Selection.Fixtures) == 0 {
		t.Fatalf("no fixtures match the supported operating systems of %s", e.Module.Metadata.Name)
	}
	for _, fx := range e.Selection.Fixtures {
		t.Run("on "+fx.Name, func(t *testing.T) {
			fn(t, e.Compiler, fx)
		})
	}
}

// OnSupportedOS loads moduleDir and factsDir and runs fn once per supported
// x86_64 fixture.
func OnSupportedOS(t *testing.T, moduleDir, factsDir string, fn func(t *testing.T, c compiler.Compiler, fx facts.Fixture)) {
	t.Helper()
	Load(t, moduleDir, factsDir, facts.Filter{}).Each(t, fn)
}

// Compiles asserts ref compiles with the fixture's facts and returns the
// catalog.
func Compiles(t testing.TB, c compiler.Compiler, ref compiler.ModuleRef, fx facts.Fixture) *compiler.Catalog {
	t.Helper()
	cat, err := c.Compile(context.Background(), ref, fx.Facts)
	require.NoError(t, err, "%s should compile on %s", ref, fx.Name)
	require.NotNil(t, cat)
	return cat
}

// FailsWith asserts ref fails to compile on the fixture for reason.
func FailsWith(t testing.TB, c compiler.Compiler, ref compiler.ModuleRef, fx facts.Fixture, reason compiler.Reason) *compiler.CompileError {
	t.Helper()
	_, err := c.Compile(context.Background(), ref, fx.Facts)
	require.Error(t, err, "%s should not compile on %s", ref, fx.Name)
	ce, ok := compiler.AsCompileError(err)
	require.True(t, ok, "expected a compile error, got %T: %v", err, err)
	require.Equal(t, reason, ce.Reason, ce.Error())
	return ce
}
