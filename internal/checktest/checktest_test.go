package checktest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterchef/catalogcheck/internal/compiler"
	"github.com/masterchef/catalogcheck/internal/facts"
)

const (
	moduleDir = "../../testdata/modules/profile_update_os"
	factsDir  = "../../testdata/facts"
)

func TestYumUpgradeCompilesOnSupportedOS(t *testing.T) {
	OnSupportedOS(t, moduleDir, factsDir, func(t *testing.T, c compiler.Compiler, fx facts.Fixture) {
		Compiles(t, c, compiler.ModuleRef{Class: "profile_update_os::yum_upgrade"}, fx)
	})
}

func TestProfileUsesPackageManagerForRelease(t *testing.T) {
	OnSupportedOS(t, moduleDir, factsDir, func(t *testing.T, c compiler.Compiler, fx facts.Fixture) {
		cat := Compiles(t, c, compiler.ModuleRef{Class: "profile_update_os"}, fx)
		if fx.Facts.String("os.release.major") == "7" {
			assert.True(t, cat.Contains("Exec[yum-upgrade]"))
			return
		}
		assert.True(t, cat.Contains("Exec[dnf-upgrade]"))
	})
}

func TestEachNamesSubtestsByFixture(t *testing.T) {
	env := Load(t, moduleDir, factsDir, facts.Filter{})
	assert.Equal(t, []string{"OracleLinux 8"}, env.Selection.Missing)

	var seen []string
	env.Each(t, func(t *testing.T, _ compiler.Compiler, fx facts.Fixture) {
		seen = append(seen, t.Name())
	})
	assert.Equal(t, []string{
		"TestEachNamesSubtestsByFixture/on_centos-7-x86_64",
		"TestEachNamesSubtestsByFixture/on_redhat-8-x86_64",
		"TestEachNamesSubtestsByFixture/on_redhat-9-x86_64",
		"TestEachNamesSubtestsByFixture/on_rocky-9-x86_64",
	}, seen)
}

func TestFailsWithOnUnsupportedFamily(t *testing.T) {
	db, err := facts.LoadDB(factsDir)
	require.NoError(t, err)
	ubuntu, ok := db.Get("ubuntu-20.04-x86_64")
	require.True(t, ok)

	env := Load(t, moduleDir, factsDir, facts.Filter{})
	ce := FailsWith(t, env.Compiler, compiler.ModuleRef{Class: "profile_update_os::yum_upgrade"}, ubuntu, compiler.ReasonEvaluation)
	assert.Contains(t, ce.Message, "Debian")
}

func TestMinimalFactsCompileWithFake(t *testing.T) {
	fake := &compiler.Fake{Fn: compiler.FailWhen(func(f facts.Facts) bool {
		return f.String("osfamily") != "RedHat"
	}, compiler.ReasonEvaluation, "unsupported")}
	centos := facts.Fixture{Name: "CentOS 7", Facts: facts.Facts{"osfamily": "RedHat"}}
	Compiles(t, fake, compiler.ModuleRef{Class: "profile_update_os::yum_upgrade"}, centos)

	debian := facts.Fixture{Name: "Debian 12", Facts: facts.Facts{"osfamily": "Debian"}}
	FailsWith(t, fake, compiler.ModuleRef{Class: "profile_update_os::yum_upgrade"}, debian, compiler.ReasonEvaluation)
}
