package checker

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/config"
	"github.com/masterchef/catalogcheck/internal/facts"
	"github.com/masterchef/catalogcheck/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixture(name, family string) facts.Fixture {
	return facts.Fixture{Name: name, Facts: facts.Facts{"osfamily": family}}
}

func TestCasesIsCrossProduct(t *testing.T) {
	refs := []compiler.ModuleRef{{Class: "a"}, {Class: "b"}}
	fxs := []facts.Fixture{fixture("centos-7-x86_64", "RedHat"), fixture("rocky-9-x86_64", "RedHat")}
	cases := Cases(refs, fxs)
	require.Len(t, cases, 4)
	assert.Equal(t, "a on rocky-9-x86_64", cases[1].String())

	more := Cases(refs, append(fxs, fixture("redhat-8-x86_64", "RedHat")))
	assert.Len(t, more, 6)
}

func TestRunReportsEveryFixture(t *testing.T) {
	fake := &compiler.Fake{Fn: compiler.FailWhen(func(f facts.Facts) bool {
		return f.String("os.family") != "RedHat"
	}, compiler.ReasonEvaluation, "unsupported os family")}
	fxs := []facts.Fixture{
		fixture("ubuntu-22.04-x86_64", "Debian"),
		fixture("centos-7-x86_64", "RedHat"),
		fixture("debian-12-x86_64", "Debian"),
		fixture("rocky-9-x86_64", "RedHat"),
	}
	cases := Cases([]compiler.ModuleRef{{Class: "profile::b"}, {Class: "profile::a"}}, fxs)

	rep := Run(context.Background(), fake, cases, Options{Jobs: 3, Missing: []string{"OracleLinux 8"}})
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, 8, rep.Total)
	assert.Equal(t, 4, rep.Passed)
	assert.Equal(t, 4, rep.Failed)
	assert.Equal(t, []string{"OracleLinux 8"}, rep.Missing)
	assert.Len(t, fake.Calls(), 8)

	require.Len(t, rep.Results, 8)
	assert.Equal(t, "profile::a", rep.Results[0].Class)
	assert.Equal(t, "centos-7-x86_64", rep.Results[0].Fixture)
	assert.Equal(t, "ubuntu-22.04-x86_64", rep.Results[3].Fixture)
	assert.Equal(t, compiler.ReasonEvaluation, rep.Results[3].Reason)

	err := rep.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile::a on debian-12-x86_64 (evaluation)")
	assert.Len(t, rep.Failures(), 4)
}

func TestRunRespectsJobLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	fake := &compiler.Fake{Fn: func(ref compiler.ModuleRef, f facts.Facts) (*compiler.Catalog, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &compiler.Catalog{Class: ref.Class}, nil
	}}
	fxs := make([]facts.Fixture, 0, 12)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		fxs = append(fxs, fixture(name, "RedHat"))
	}
	rep := Run(context.Background(), fake, Cases([]compiler.ModuleRef{{Class: "demo"}}, fxs), Options{Jobs: 2})
	require.NoError(t, rep.Err())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunCanceledContextFailsRemainingCases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := &compiler.Fake{}
	rep := Run(ctx, fake, Cases([]compiler.ModuleRef{{Class: "demo"}}, []facts.Fixture{fixture("a", "RedHat"), fixture("b", "RedHat")}), Options{Jobs: 1})
	assert.Equal(t, 2, rep.Failed)
	for _, r := range rep.Results {
		assert.Equal(t, ReasonCanceled, r.Reason)
	}
	assert.Empty(t, fake.Calls())
}

func TestRunCaseDetectsNondeterminism(t *testing.T) {
	var n atomic.Int32
	fake := &compiler.Fake{Fn: func(ref compiler.ModuleRef, f facts.Facts) (*compiler.Catalog, error) {
		i := n.Add(1)
		return &compiler.Catalog{Class: ref.Class, Resources: []compiler.CatalogResource{{ID: "r", Order: int(i)}}}, nil
	}}
	cs := Case{Ref: compiler.ModuleRef{Class: "demo"}, Fixture: fixture("centos-7-x86_64", "RedHat")}

	plain := RunCase(context.Background(), fake, cs, false)
	assert.True(t, plain.Passed)

	verified := RunCase(context.Background(), fake, cs, true)
	assert.False(t, verified.Passed)
	assert.Equal(t, ReasonNondeterministic, verified.Reason)
}

func TestRunVerifyIdempotentBypassesCompileCache(t *testing.T) {
	var n atomic.Int32
	fake := &compiler.Fake{Fn: func(ref compiler.ModuleRef, f facts.Facts) (*compiler.Catalog, error) {
		i := n.Add(1)
		return &compiler.Catalog{Class: ref.Class, Classes: []string{ref.Class, fmt.Sprintf("gen%d", i)}}, nil
	}}
	cached := compiler.Cached(fake)
	cases := Cases([]compiler.ModuleRef{{Class: "demo"}}, []facts.Fixture{fixture("centos-7-x86_64", "RedHat")})

	rep := Run(context.Background(), cached, cases, Options{Jobs: 1, VerifyIdempotent: true})
	require.Len(t, rep.Results, 1)
	assert.False(t, rep.Results[0].Passed)
	assert.Equal(t, ReasonNondeterministic, rep.Results[0].Reason)
	assert.Len(t, fake.Calls(), 2)
	assert.Equal(t, 1, cached.Len())
}

func TestRunAgainstModule(t *testing.T) {
	mod, err := config.LoadModule("../../testdata/modules/profile_update_os")
	require.NoError(t, err)
	db, err := facts.LoadDB("../../testdata/facts")
	require.NoError(t, err)
	sel := db.OnSupportedOS(mod.Metadata.OperatingSystemSupport, facts.Filter{})
	ubuntu, ok := db.Get("ubuntu-20.04-x86_64")
	require.True(t, ok)

	engine := compiler.Cached(compiler.New(mod))
	cases := Cases([]compiler.ModuleRef{{Class: "profile_update_os"}}, append(sel.Fixtures, ubuntu))
	rep := Run(context.Background(), engine, cases, Options{Jobs: 4, VerifyIdempotent: true, Missing: sel.Missing})

	assert.Equal(t, 5, rep.Total)
	assert.Equal(t, 4, rep.Passed)
	require.Equal(t, 1, rep.Failed)
	failed := rep.Failures()[0]
	assert.Equal(t, "ubuntu-20.04-x86_64", failed.Fixture)
	assert.Equal(t, compiler.ReasonEvaluation, failed.Reason)

	rec := rep.Record()
	assert.Equal(t, state.RunFailed, rec.Status)
	assert.Len(t, rec.Results, 5)
	assert.Equal(t, []string{"OracleLinux 8"}, rec.Missing)
}
