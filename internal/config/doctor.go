package config

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

func Analyze(mod *Module) []Diagnostic {
	diags := make([]Diagnostic, 0)
	if mod == nil {
		return append(diags, Diagnostic{Severity: SeverityError, Code: "MOD_NIL", Message: "module is nil"})
	}
	if len(mod.Classes) == 0 {
		diags = append(diags, Diagnostic{Severity: SeverityError, Code: "MOD_NO_CLASSES", Message: "module declares no classes"})
	}
	if len(mod.Metadata.OperatingSystemSupport) == 0 {
		diags = append(diags, Diagnostic{Severity: SeverityWarn, Code: "MOD_NO_OS_SUPPORT", Message: "metadata declares no operatingsystem_support; fixtures must be selected explicitly"})
	}
	for _, c := range mod.Classes {
		for _, r := range c.Resources {
			switch r.Type {
			case "exec":
				if !hasAnyParam(r, "creates", "unless", "onlyif") && !truthyParam(r, "refreshonly") {
					diags = append(diags, Diagnostic{Severity: SeverityWarn, Code: "EXEC_NON_IDEMPOTENT", Message: fmt.Sprintf("%s resource %q exec should set creates, unless, onlyif or refreshonly", c.Name, r.ID)})
				}
			case "package":
				if ensure, _ := r.Params["ensure"].(string); strings.EqualFold(ensure, "latest") {
					diags = append(diags, Diagnostic{Severity: SeverityInfo, Code: "PACKAGE_LATEST", Message: fmt.Sprintf("%s resource %q tracks the latest package version", c.Name, r.ID)})
				}
			case "file":
				if !hasAnyParam(r, "mode") {
					diags = append(diags, Diagnostic{Severity: SeverityInfo, Code: "FILE_MODE_UNSET", Message: fmt.Sprintf("%s resource %q file does not set mode explicitly", c.Name, r.ID)})
				}
			}
		}
	}
	return diags
}

func hasAnyParam(r Resource, names ...string) bool {
	for _, name := range names {
		if v, ok := r.Params[name]; ok && strings.TrimSpace(FormatValue(v)) != "" {
			return true
		}
	}
	return false
}

func truthyParam(r Resource, name string) bool {
	switch v := r.Params[name].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}
