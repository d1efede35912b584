package facts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masterchef/catalogcheck/internal/config"
)

const factsDir = "../../testdata/facts"

func fixtureNames(fxs []Fixture) []string {
	out := make([]string, 0, len(fxs))
	for _, fx := range fxs {
		out = append(out, fx.Name)
	}
	return out
}

func TestFixtureName(t *testing.T) {
	assert.Equal(t, "centos-7-x86_64", FixtureName(Facts{
		"os": map[string]any{"name": "CentOS", "hardware": "x86_64", "release": map[string]any{"major": "7"}},
	}))
	assert.Equal(t, "oraclelinux-8", FixtureName(Facts{"operatingsystem": "Oracle Linux", "operatingsystemmajrelease": "8"}))
	assert.Equal(t, "", FixtureName(Facts{"osfamily": "RedHat"}))
}

func TestLoadDB(t *testing.T) {
	db, err := LoadDB(factsDir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"centos-7-x86_64",
		"redhat-8-x86_64",
		"redhat-9-x86_64",
		"rocky-9-aarch64",
		"rocky-9-x86_64",
		"ubuntu-20.04-x86_64",
	}, fixtureNames(db.All()))

	ubuntu, ok := db.Get("ubuntu-20.04-x86_64")
	require.True(t, ok)
	assert.Equal(t, "Debian", ubuntu.Facts.String("os.family"))
}

func TestLoadDBRejectsDuplicateFixtures(t *testing.T) {
	dir := t.TempDir()
	body := []byte("os:\n  name: CentOS\n  hardware: x86_64\n  release:\n    major: \"7\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), body, 0o644))

	_, err := LoadDB(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate fixture")
}

func TestLoadFixtureFallsBackToFileStem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.facts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"osfamily":"RedHat"}`), 0o644))

	fx, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", fx.Name)
	assert.Equal(t, "RedHat", fx.Facts.String("os.family"))
}

func TestOnSupportedOS(t *testing.T) {
	db, err := LoadDB(factsDir)
	require.NoError(t, err)
	support := []config.OSSupport{
		{OperatingSystem: "CentOS", Releases: []string{"7"}},
		{OperatingSystem: "RedHat", Releases: []string{"8", "9"}},
		{OperatingSystem: "rocky", Releases: []string{"9"}},
		{OperatingSystem: "OracleLinux", Releases: []string{"8"}},
	}

	sel := db.OnSupportedOS(support, Filter{})
	assert.Equal(t, []string{"centos-7-x86_64", "redhat-8-x86_64", "redhat-9-x86_64", "rocky-9-x86_64"}, fixtureNames(sel.Fixtures))
	assert.Equal(t, []string{"OracleLinux 8"}, sel.Missing)

	arm := db.OnSupportedOS(support, Filter{HardwareModels: []string{"aarch64"}})
	assert.Equal(t, []string{"rocky-9-aarch64"}, fixtureNames(arm.Fixtures))

	named := db.OnSupportedOS(support, Filter{Names: []string{"redhat-9-x86_64"}})
	assert.Equal(t, []string{"redhat-9-x86_64"}, fixtureNames(named.Fixtures))
	assert.Equal(t, []string{"OracleLinux 8"}, named.Missing)
}

func TestOnSupportedOSMatchesFullReleaseAndAllReleases(t *testing.T) {
	db, err := LoadDB(factsDir)
	require.NoError(t, err)

	full := db.OnSupportedOS([]config.OSSupport{{OperatingSystem: "RedHat", Releases: []string{"8.8"}}}, Filter{})
	assert.Equal(t, []string{"redhat-8-x86_64"}, fixtureNames(full.Fixtures))

	all := db.OnSupportedOS([]config.OSSupport{{OperatingSystem: "RedHat"}}, Filter{})
	assert.Equal(t, []string{"redhat-8-x86_64", "redhat-9-x86_64"}, fixtureNames(all.Fixtures))
	assert.Empty(t, all.Missing)
}
