package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadModule_ComposesIncludesAndOverlays(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "metadata.json"), `{
  "name": "acme-profile",
  "operatingsystem_support": [{"operatingsystem": "CentOS", "operatingsystemrelease": ["7"]}]
}`)
	writeFile(t, filepath.Join(dir, "shared", "base.yaml"), `version: v0
classes:
  - name: profile::base
    resources:
      - id: motd
        type: file
        params: {path: /etc/motd, content: base}
`)
	writeFile(t, filepath.Join(dir, "shared", "override.yaml"), `version: v0
classes:
  - name: profile::base
    resources:
      - id: motd
        type: file
        params: {path: /etc/motd, content: overridden}
`)
	writeFile(t, filepath.Join(dir, "manifests", "init.yaml"), `version: v0
includes: [../shared/base.yaml]
overlays: [../shared/override.yaml]
classes:
  - name: profile::app
    includes: [profile::base]
    resources:
      - id: app
        type: package
`)
	mod, err := LoadModule(dir)
	if err != nil {
		t.Fatalf("load module: %v", err)
	}
	if mod.Metadata.Name != "acme-profile" || len(mod.Metadata.OperatingSystemSupport) != 1 {
		t.Fatalf("unexpected metadata %+v", mod.Metadata)
	}
	base, ok := mod.Class("profile::base")
	if !ok {
		t.Fatalf("expected included class, got %+v", mod.Classes)
	}
	if base.Resources[0].Params["content"] != "overridden" {
		t.Fatalf("expected overlay to win, got %+v", base.Resources[0])
	}
	if _, ok := mod.Class("profile::app"); !ok {
		t.Fatalf("expected profile::app to be loaded")
	}
}

func TestLoadModule_CycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "manifests", "a.yaml"), "version: v0\nincludes: [b.yaml]\n")
	writeFile(t, filepath.Join(dir, "manifests", "b.yaml"), "version: v0\nincludes: [a.yaml]\n")
	_, err := LoadModule(dir)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected composition cycle error, got %v", err)
	}
}

func TestLoadModule_SyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "manifests", "broken.yaml"), "version: v0\nclasses: [\n")
	if _, err := LoadModule(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadModule_MissingManifests(t *testing.T) {
	if _, err := LoadModule(t.TempDir()); err == nil {
		t.Fatalf("expected missing manifests error")
	}
}
