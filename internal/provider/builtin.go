package provider

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/masterchef/catalogcheck/internal/config"
)

// ParamSpec describes one parameter of a resource type.
type ParamSpec struct {
	Name     string
	Type     config.ParamType
	Required bool
	// Namevar parameters default to the resource title.
	Namevar bool
	Pattern *regexp.Regexp
}

// SchemaHandler validates resources against a fixed parameter schema.
type SchemaHandler struct {
	Name   string
	Params []ParamSpec
	// Check runs after per-parameter validation for cross-parameter rules.
	Check func(params map[string]any) error
}

func (h *SchemaHandler) Type() string { return h.Name }

func (h *SchemaHandler) Validate(resource config.Resource) (map[string]any, error) {
	title := resource.Title
	if strings.TrimSpace(title) == "" {
		title = resource.ID
	}
	specs := make(map[string]ParamSpec, len(h.Params))
	for _, spec := range h.Params {
		specs[spec.Name] = spec
	}
	fail := func(param, format string, args ...any) error {
		return &ParamError{Type: h.Name, Resource: title, Param: param, Message: fmt.Sprintf(format, args...)}
	}

	keys := make([]string, 0, len(resource.Params))
	for k := range resource.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(resource.Params)+1)
	for _, k := range keys {
		spec, ok := specs[k]
		if !ok {
			return nil, fail(k, "is not a valid parameter")
		}
		v, err := spec.Type.Coerce(resource.Params[k])
		if err != nil {
			return nil, fail(k, "%v", err)
		}
		if s, ok := v.(string); ok && spec.Pattern != nil && !spec.Pattern.MatchString(s) {
			return nil, fail(k, "value %q does not match %s", s, spec.Pattern.String())
		}
		out[k] = v
	}
	for _, spec := range h.Params {
		if _, ok := out[spec.Name]; ok {
			continue
		}
		if spec.Namevar {
			if spec.Pattern != nil && !spec.Pattern.MatchString(title) {
				return nil, fail(spec.Name, "value %q does not match %s", title, spec.Pattern.String())
			}
			out[spec.Name] = title
			continue
		}
		if spec.Required {
			return nil, fail(spec.Name, "is required")
		}
	}
	if h.Check != nil {
		if err := h.Check(out); err != nil {
			return nil, fail("", "%v", err)
		}
	}
	return out, nil
}

var (
	stringType = config.ParamType{Kind: config.KindString}
	boolType   = config.ParamType{Kind: config.KindBool}
	intType    = config.ParamType{Kind: config.KindInt}
	arrayType  = config.ParamType{Kind: config.KindArray}
)

func enumType(values ...string) config.ParamType {
	return config.ParamType{Kind: config.KindEnum, Values: values}
}

var (
	packageEnsurePattern = regexp.MustCompile(`^(present|installed|latest|absent|purged|[0-9][A-Za-z0-9._:~+-]*)$`)
	absolutePathPattern  = regexp.MustCompile(`^/`)
	fileModePattern      = regexp.MustCompile(`^0?[0-7]{3,4}$`)
	cronFieldPattern     = regexp.MustCompile(`^(\*|[0-9]+(-[0-9]+)?)(/[0-9]+)?(,(\*|[0-9]+(-[0-9]+)?)(/[0-9]+)?)*$`)
)

func packageHandler() *SchemaHandler {
	return &SchemaHandler{
		Name: "package",
		Params: []ParamSpec{
			{Name: "name", Type: stringType, Namevar: true},
			{Name: "ensure", Type: stringType, Pattern: packageEnsurePattern},
			{Name: "provider", Type: enumType("apt", "dnf", "rpm", "yum")},
			{Name: "install_options", Type: arrayType},
		},
	}
}

func serviceHandler() *SchemaHandler {
	return &SchemaHandler{
		Name: "service",
		Params: []ParamSpec{
			{Name: "name", Type: stringType, Namevar: true},
			{Name: "ensure", Type: enumType("running", "stopped")},
			{Name: "enable", Type: boolType},
			{Name: "hasrestart", Type: boolType},
		},
	}
}

func fileHandler() *SchemaHandler {
	return &SchemaHandler{
		Name: "file",
		Params: []ParamSpec{
			{Name: "path", Type: stringType, Namevar: true, Pattern: absolutePathPattern},
			{Name: "ensure", Type: enumType("absent", "directory", "file", "link", "present")},
			{Name: "content", Type: stringType},
			{Name: "source", Type: stringType},
			{Name: "target", Type: stringType},
			{Name: "mode", Type: stringType, Pattern: fileModePattern},
			{Name: "owner", Type: stringType},
			{Name: "group", Type: stringType},
		},
		Check: func(params map[string]any) error {
			_, hasContent := params["content"]
			_, hasSource := params["source"]
			if hasContent && hasSource {
				return fmt.Errorf("content and source are mutually exclusive")
			}
			if _, hasTarget := params["target"]; hasTarget && params["ensure"] != "link" {
				return fmt.Errorf("target requires ensure => link")
			}
			return nil
		},
	}
}

func execHandler() *SchemaHandler {
	return &SchemaHandler{
		Name: "exec",
		Params: []ParamSpec{
			{Name: "command", Type: stringType, Namevar: true},
			{Name: "creates", Type: stringType, Pattern: absolutePathPattern},
			{Name: "unless", Type: stringType},
			{Name: "onlyif", Type: stringType},
			{Name: "refreshonly", Type: boolType},
			{Name: "timeout", Type: intType},
			{Name: "path", Type: arrayType},
			{Name: "user", Type: stringType},
			{Name: "environment", Type: arrayType},
		},
		Check: func(params map[string]any) error {
			if n, ok := params["timeout"].(int); ok && n < 0 {
				return fmt.Errorf("timeout must be >= 0")
			}
			return nil
		},
	}
}

func yumrepoHandler() *SchemaHandler {
	return &SchemaHandler{
		Name: "yumrepo",
		Params: []ParamSpec{
			{Name: "name", Type: stringType, Namevar: true},
			{Name: "descr", Type: stringType},
			{Name: "baseurl", Type: stringType},
			{Name: "mirrorlist", Type: stringType},
			{Name: "enabled", Type: boolType},
			{Name: "gpgcheck", Type: boolType},
			{Name: "gpgkey", Type: stringType},
		},
		Check: func(params map[string]any) error {
			_, hasBase := params["baseurl"]
			_, hasMirror := params["mirrorlist"]
			if !hasBase && !hasMirror {
				return fmt.Errorf("one of baseurl or mirrorlist is required")
			}
			return nil
		},
	}
}

func cronHandler() *SchemaHandler {
	return &SchemaHandler{
		Name: "cron",
		Params: []ParamSpec{
			{Name: "name", Type: stringType, Namevar: true},
			{Name: "command", Type: stringType, Required: true},
			{Name: "ensure", Type: enumType("absent", "present")},
			{Name: "user", Type: stringType},
			{Name: "minute", Type: stringType, Pattern: cronFieldPattern},
			{Name: "hour", Type: stringType, Pattern: cronFieldPattern},
			{Name: "weekday", Type: stringType, Pattern: cronFieldPattern},
			{Name: "monthday", Type: stringType, Pattern: cronFieldPattern},
		},
	}
}

func notifyHandler() *SchemaHandler {
	return &SchemaHandler{
		Name: "notify",
		Params: []ParamSpec{
			{Name: "message", Type: stringType, Namevar: true},
		},
	}
}

func rebootHandler() *SchemaHandler {
	return &SchemaHandler{
		Name: "reboot",
		Params: []ParamSpec{
			{Name: "name", Type: stringType, Namevar: true},
			{Name: "apply", Type: enumType("finished", "immediately")},
			{Name: "when", Type: enumType("pending", "refreshed")},
			{Name: "timeout", Type: intType},
		},
	}
}

func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(packageHandler())
	r.MustRegister(serviceHandler())
	r.MustRegister(fileHandler())
	r.MustRegister(execHandler())
	r.MustRegister(yumrepoHandler())
	r.MustRegister(cronHandler())
	r.MustRegister(notifyHandler())
	r.MustRegister(rebootHandler())
	return r
}
