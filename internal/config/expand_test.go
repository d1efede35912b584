package config

import (
	"errors"
	"testing"
)

func TestExpand_MatrixWhenAndTemplates(t *testing.T) {
	scope := map[string]string{"os.family": "RedHat", "os.release.major": "8"}
	in := []Resource{{
		ID:     "install-{{pkg}}",
		Type:   "package",
		When:   "os.release.major >= 8 && pkg != yum-utils",
		Matrix: map[string][]string{"pkg": {"dnf-utils", "yum-utils"}},
		Params: map[string]any{"name": "{{ pkg }}", "tag": []any{"{{os.family}}"}},
	}}
	out, err := Expand(in, scope)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one resource after when filtering, got %+v", out)
	}
	if out[0].ID != "install-dnf-utils" || out[0].Params["name"] != "dnf-utils" {
		t.Fatalf("unexpected expanded resource %+v", out[0])
	}
	if tags := out[0].Params["tag"].([]any); tags[0] != "RedHat" {
		t.Fatalf("expected nested template rendering, got %+v", tags)
	}
	if in[0].Params["name"] != "{{ pkg }}" {
		t.Fatalf("expand mutated its input: %+v", in[0].Params)
	}
}

func TestExpand_LoopAutoIDSuffix(t *testing.T) {
	out, err := Expand([]Resource{{
		ID:   "exclude",
		Type: "notify",
		Loop: []string{"kernel", "glibc"},
	}}, nil)
	if err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	if len(out) != 2 || out[0].ID != "exclude-item-glibc" || out[1].ID != "exclude-item-kernel" {
		t.Fatalf("unexpected loop expansion %+v", out)
	}
}

func TestExpand_UnknownVariable(t *testing.T) {
	_, err := Expand([]Resource{{
		ID:     "motd",
		Type:   "file",
		Params: map[string]any{"content": "{{ os.distro.codename }}"},
	}}, map[string]string{"os.family": "RedHat"})
	var undef *UndefinedVariableError
	if !errors.As(err, &undef) || undef.Name != "os.distro.codename" {
		t.Fatalf("expected undefined variable error, got %v", err)
	}
}

func TestEvalWhen(t *testing.T) {
	vars := map[string]string{"osfamily": "RedHat", "major": "10", "flag": "true"}
	cases := map[string]bool{
		"":                                  true,
		"osfamily == RedHat":                true,
		"osfamily == 'Debian'":              false,
		"osfamily != Debian":                true,
		"major >= 9":                        true,
		"major < 9":                         false,
		"flag":                              true,
		"missing":                           true,
		"false":                             false,
		"osfamily == Debian || major > 7":   true,
		"osfamily == RedHat && major == 7":  false,
		"osfamily == RedHat && major == 10": true,
	}
	for expr, want := range cases {
		if got := EvalWhen(expr, vars); got != want {
			t.Fatalf("EvalWhen(%q)=%v want %v", expr, got, want)
		}
	}
}
