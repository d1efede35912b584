package provider

import (
	"errors"
	"testing"

	"github.com/masterchef/catalogcheck/internal/config"
)

func TestBuiltinRegistry_HasCoreProviders(t *testing.T) {
	r := NewBuiltinRegistry()
	for _, typ := range []string{"package", "service", "file", "exec", "yumrepo", "cron", "notify", "reboot"} {
		if _, ok := r.Lookup(typ); !ok {
			t.Fatalf("expected provider type %q in registry", typ)
		}
	}
	if got := len(r.Types()); got != 8 {
		t.Fatalf("unexpected registered type count %d", got)
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(packageHandler()); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(packageHandler()); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if err := r.Register(nil); err == nil {
		t.Fatalf("expected nil handler error")
	}
}

func TestValidate_DefaultsNamevarAndCoerces(t *testing.T) {
	h, _ := NewBuiltinRegistry().Lookup("service")
	params, err := h.Validate(config.Resource{
		ID:     "svc",
		Type:   "service",
		Title:  "dnf-automatic.timer",
		Params: map[string]any{"ensure": "running", "enable": "true"},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if params["name"] != "dnf-automatic.timer" || params["enable"] != true {
		t.Fatalf("unexpected normalized params %+v", params)
	}
}

func TestValidate_Violations(t *testing.T) {
	r := NewBuiltinRegistry()
	cases := []struct {
		name  string
		res   config.Resource
		param string
	}{
		{name: "unknown param", res: config.Resource{ID: "p", Type: "package", Params: map[string]any{"colour": "red"}}, param: "colour"},
		{name: "bad enum", res: config.Resource{ID: "s", Type: "service", Params: map[string]any{"ensure": "sleeping"}}, param: "ensure"},
		{name: "bad package ensure", res: config.Resource{ID: "p", Type: "package", Params: map[string]any{"ensure": "newest"}}, param: "ensure"},
		{name: "relative path", res: config.Resource{ID: "etc/motd", Type: "file"}, param: "path"},
		{name: "bad mode", res: config.Resource{ID: "/etc/motd", Type: "file", Params: map[string]any{"mode": "rwx"}}, param: "mode"},
		{name: "bad timeout type", res: config.Resource{ID: "e", Type: "exec", Params: map[string]any{"timeout": "soon"}}, param: "timeout"},
		{name: "missing cron command", res: config.Resource{ID: "c", Type: "cron"}, param: "command"},
		{name: "bad cron hour", res: config.Resource{ID: "c", Type: "cron", Params: map[string]any{"command": "x", "hour": "noon"}}, param: "hour"},
		{name: "repo without url", res: config.Resource{ID: "epel", Type: "yumrepo", Params: map[string]any{"enabled": true}}, param: ""},
		{name: "content and source", res: config.Resource{ID: "/etc/motd", Type: "file", Params: map[string]any{"content": "a", "source": "b"}}, param: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, ok := r.Lookup(tc.res.Type)
			if !ok {
				t.Fatalf("missing handler %q", tc.res.Type)
			}
			_, err := h.Validate(tc.res)
			var pe *ParamError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParamError, got %v", err)
			}
			if pe.Param != tc.param {
				t.Fatalf("expected violation on %q, got %+v", tc.param, pe)
			}
		})
	}
}

func TestConformance_BuiltinsAreIdempotent(t *testing.T) {
	r := NewBuiltinRegistry()
	samples := []config.Resource{
		{ID: "yum-utils", Type: "package", Params: map[string]any{"ensure": "latest", "install_options": []any{"--nogpgcheck"}}},
		{ID: "/etc/motd", Type: "file", Params: map[string]any{"content": "hi", "mode": "0644"}},
		{ID: "upgrade", Type: "exec", Params: map[string]any{"command": "yum -y upgrade", "timeout": "600", "refreshonly": "yes"}},
		{ID: "epel", Type: "yumrepo", Params: map[string]any{"baseurl": "https://example.com", "gpgcheck": "false"}},
		{ID: "nightly", Type: "cron", Params: map[string]any{"command": "upgrade", "hour": "3", "minute": "*/15"}},
		{ID: "after-upgrade", Type: "reboot", Params: map[string]any{"apply": "finished"}},
	}
	for _, sample := range samples {
		h, _ := r.Lookup(sample.Type)
		rep := CheckIdempotency(h, sample)
		if !rep.IdempotentPass {
			t.Fatalf("expected idempotent pass for %s, got %+v", sample.Type, rep)
		}
	}
}
