package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFillsLegacyFromStructured(t *testing.T) {
	f := Facts{
		"os": map[string]any{
			"name":     "CentOS",
			"family":   "RedHat",
			"hardware": "x86_64",
			"release":  map[string]any{"major": "7", "full": "7.9.2009"},
		},
	}
	n := f.Normalize()
	assert.Equal(t, "RedHat", n.String("osfamily"))
	assert.Equal(t, "CentOS", n.String("operatingsystem"))
	assert.Equal(t, "7", n.String("operatingsystemmajrelease"))
	assert.Equal(t, "7.9.2009", n.String("operatingsystemrelease"))
	assert.Equal(t, "x86_64", n.String("hardwaremodel"))
	assert.Equal(t, "Linux", n.String("kernel"))
	_, touched := f["osfamily"]
	assert.False(t, touched, "receiver must not be modified")
}

func TestNormalizeFillsStructuredFromLegacy(t *testing.T) {
	n := Facts{"osfamily": "RedHat", "operatingsystemmajrelease": "8"}.Normalize()
	assert.Equal(t, "RedHat", n.String("os.family"))
	assert.Equal(t, "8", n.String("os.release.major"))
}

func TestNormalizeKeepsExplicitLegacyValue(t *testing.T) {
	n := Facts{
		"osfamily": "Custom",
		"os":       map[string]any{"family": "RedHat"},
	}.Normalize()
	assert.Equal(t, "Custom", n.String("osfamily"))
	assert.Equal(t, "RedHat", n.String("os.family"))
}

func TestLookupAndFlatten(t *testing.T) {
	f := Facts{
		"os":         map[string]any{"release": map[string]any{"major": 7}},
		"interfaces": []any{"eth0", "lo"},
	}
	v, ok := f.Lookup("os.release.major")
	require.True(t, ok)
	assert.Equal(t, 7, v)
	_, ok = f.Lookup("os.release.major.minor")
	assert.False(t, ok)

	flat := f.Flatten()
	assert.Equal(t, "7", flat["os.release.major"])
	assert.Equal(t, "eth0,lo", flat["interfaces"])
}

func TestDigestIgnoresMapTyping(t *testing.T) {
	a := Facts{"os": map[string]any{"family": "RedHat", "name": "CentOS"}}
	b := Facts{"os": map[any]any{"name": "CentOS", "family": "RedHat"}}
	assert.Equal(t, a.Digest(), b.Digest())

	c := Facts{"os": map[string]any{"family": "Debian", "name": "CentOS"}}
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestCloneIsDeep(t *testing.T) {
	f := Facts{"os": map[string]any{"family": "RedHat"}}
	c := f.Clone()
	c["os"].(map[string]any)["family"] = "Debian"
	assert.Equal(t, "RedHat", f.String("os.family"))
}
