package config

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type ParamKind string

const (
	KindString ParamKind = "string"
	KindBool   ParamKind = "bool"
	KindInt    ParamKind = "int"
	KindArray  ParamKind = "array"
	KindEnum   ParamKind = "enum"
)

// ParamType is a parsed parameter type such as "bool" or "enum[never,always]".
type ParamType struct {
	Kind   ParamKind
	Values []string
}

func ParseParamType(s string) (ParamType, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	switch raw {
	case "", "string":
		return ParamType{Kind: KindString}, nil
	case "bool", "boolean":
		return ParamType{Kind: KindBool}, nil
	case "int", "integer":
		return ParamType{Kind: KindInt}, nil
	case "array":
		return ParamType{Kind: KindArray}, nil
	}
	if strings.HasPrefix(raw, "enum[") && strings.HasSuffix(raw, "]") {
		trimmed := strings.TrimSpace(s)
		inner := trimmed[len("enum[") : len(trimmed)-1]
		values := make([]string, 0)
		seen := map[string]struct{}{}
		for _, v := range strings.Split(inner, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		if len(values) == 0 {
			return ParamType{}, fmt.Errorf("enum type %q has no values", s)
		}
		sort.Strings(values)
		return ParamType{Kind: KindEnum, Values: values}, nil
	}
	return ParamType{}, fmt.Errorf("unsupported parameter type %q", s)
}

func (t ParamType) String() string {
	if t.Kind == KindEnum {
		return "enum[" + strings.Join(t.Values, ",") + "]"
	}
	return string(t.Kind)
}

// Coerce converts v to the canonical Go value for t: string, bool, int or
// []string. String forms of bools and integers are accepted.
func (t ParamType) Coerce(v any) (any, error) {
	switch t.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", describe(v))
		}
		return s, nil
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "yes", "on":
				return true, nil
			case "false", "no", "off":
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected bool, got %s", describe(v))
	case KindInt:
		switch n := v.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case uint64:
			return int(n), nil
		case float64:
			if n == math.Trunc(n) {
				return int(n), nil
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return i, nil
			}
		}
		return nil, fmt.Errorf("expected int, got %s", describe(v))
	case KindArray:
		switch items := v.(type) {
		case []string:
			return append([]string{}, items...), nil
		case []any:
			out := make([]string, 0, len(items))
			for i, item := range items {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("expected array of strings, element %d is %s", i, describe(item))
				}
				out = append(out, s)
			}
			return out, nil
		case string:
			if strings.TrimSpace(items) == "" {
				return []string{}, nil
			}
			return []string{items}, nil
		}
		return nil, fmt.Errorf("expected array, got %s", describe(v))
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %s, got %s", strings.Join(t.Values, ", "), describe(v))
		}
		for _, allowed := range t.Values {
			if s == allowed {
				return s, nil
			}
		}
		return nil, fmt.Errorf("expected one of %s, got %q", strings.Join(t.Values, ", "), s)
	default:
		return nil, fmt.Errorf("unsupported parameter kind %q", t.Kind)
	}
}

// FormatValue renders a coerced value the way templates see it.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, ",")
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "undef"
	case string:
		return "string"
	case bool:
		return "bool"
	case int, int64, uint64:
		return "int"
	case float64:
		return "float"
	case []any, []string:
		return "array"
	case map[string]any:
		return "hash"
	default:
		return fmt.Sprintf("%T", v)
	}
}
