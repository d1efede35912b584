package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterchef/catalogcheck/internal/facts"
)

func TestCachedMemoizesSuccessAndFailure(t *testing.T) {
	fake := &Fake{Fn: FailWhen(func(f facts.Facts) bool {
		return f.String("os.family") != "RedHat"
	}, ReasonEvaluation, "unsupported")}
	c := Cached(fake)
	ctx := context.Background()
	ref := ModuleRef{Class: "demo", Params: map[string]any{"a": 1}}

	for i := 0; i < 3; i++ {
		_, err := c.Compile(ctx, ref, facts.Facts{"osfamily": "RedHat"})
		require.NoError(t, err)
		_, err = c.Compile(ctx, ref, facts.Facts{"osfamily": "Debian"})
		require.True(t, IsReason(err, ReasonEvaluation))
	}
	assert.Len(t, fake.Calls(), 2)
	assert.Equal(t, 2, c.Len())

	_, err := c.Compile(ctx, ModuleRef{Class: "demo", Params: map[string]any{"a": 2}}, facts.Facts{"osfamily": "RedHat"})
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 3)

	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestCachedSkipsContextErrors(t *testing.T) {
	fake := &Fake{}
	c := Cached(fake)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Compile(ctx, ModuleRef{Class: "demo"}, facts.Facts{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Len())

	_, err = c.Compile(context.Background(), ModuleRef{Class: "demo"}, facts.Facts{})
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 2)
}

func TestCachedFreshContextAlwaysCompiles(t *testing.T) {
	fake := &Fake{}
	c := Cached(fake)
	ctx := context.Background()
	ref := ModuleRef{Class: "demo"}

	_, err := c.Compile(ctx, ref, facts.Facts{})
	require.NoError(t, err)
	assert.False(t, IsFresh(ctx))

	fresh := Fresh(ctx)
	assert.True(t, IsFresh(fresh))
	for i := 0; i < 2; i++ {
		_, err = c.Compile(fresh, ref, facts.Facts{})
		require.NoError(t, err)
	}
	assert.Len(t, fake.Calls(), 3)
	assert.Equal(t, 1, c.Len())

	_, err = c.Compile(ctx, ref, facts.Facts{})
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 3)
}

func TestCompileErrorFormatting(t *testing.T) {
	err := &CompileError{Class: "demo", Reason: ReasonDuplicate, Resource: "Package[vim]", Message: "already declared"}
	assert.Equal(t, "compile demo: duplicate error on Package[vim]: already declared", err.Error())
	assert.Equal(t, "demo(a=1, b=x,y)", ModuleRef{Class: "demo", Params: map[string]any{"b": []string{"x", "y"}, "a": 1}}.String())
}
