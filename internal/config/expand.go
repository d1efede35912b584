package config

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var templateTokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

var comparisonPattern = regexp.MustCompile(`^(.*?)\s*(==|!=|>=|<=|>|<)\s*(.*)$`)

// UndefinedVariableError is returned when a template references a variable
// that is not in scope.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q", e.Name)
}

// Expand applies matrix and loop expansion to resources, drops resources whose
// when condition is false for scope, and renders {{ var }} templates. Matrix
// and loop variables shadow scope variables.
func Expand(resources []Resource, scope map[string]string) ([]Resource, error) {
	if len(resources) == 0 {
		return resources, nil
	}
	out := make([]Resource, 0, len(resources))
	for _, in := range resources {
		effectiveMatrix, expanded := expansionMatrix(in)
		combos := matrixCombinations(effectiveMatrix)
		if len(combos) == 0 {
			combos = []map[string]string{{}}
		}
		for _, local := range combos {
			vars := layeredScope(scope, local)
			if !EvalWhen(in.When, vars) {
				continue
			}
			res := cloneResource(in)
			res.When = ""
			res.Matrix = nil
			res.Loop = nil
			res.LoopVar = ""
			if err := applyResourceTemplateVars(&res, vars); err != nil {
				return nil, fmt.Errorf("resource %q: %w", in.ID, err)
			}
			if expanded && strings.TrimSpace(res.ID) == strings.TrimSpace(in.ID) {
				res.ID = appendMatrixSuffix(res.ID, local)
			}
			out = append(out, res)
		}
	}
	return out, nil
}

func layeredScope(base, local map[string]string) map[string]string {
	if len(local) == 0 {
		return base
	}
	vars := make(map[string]string, len(base)+len(local))
	for k, v := range base {
		vars[k] = v
	}
	for k, v := range local {
		vars[k] = v
	}
	return vars
}

func expansionMatrix(in Resource) (map[string][]string, bool) {
	matrix := map[string][]string{}
	expanded := false
	for key, values := range in.Matrix {
		matrix[key] = append([]string{}, values...)
		if len(values) > 0 {
			expanded = true
		}
	}
	if len(in.Loop) > 0 {
		key := strings.TrimSpace(in.LoopVar)
		if key == "" {
			key = "item"
		}
		if _, exists := matrix[key]; !exists {
			matrix[key] = append([]string{}, in.Loop...)
			expanded = true
		}
	}
	if len(matrix) == 0 {
		return nil, false
	}
	return matrix, expanded
}

func matrixCombinations(matrix map[string][]string) []map[string]string {
	if len(matrix) == 0 {
		return nil
	}
	keys := make([]string, 0, len(matrix))
	normalized := map[string][]string{}
	for key, values := range matrix {
		name := strings.TrimSpace(key)
		if name == "" {
			continue
		}
		clean := make([]string, 0, len(values))
		seen := map[string]struct{}{}
		for _, v := range values {
			item := strings.TrimSpace(v)
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			clean = append(clean, item)
		}
		if len(clean) == 0 {
			return nil
		}
		sort.Strings(clean)
		normalized[name] = clean
		keys = append(keys, name)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	combos := make([]map[string]string, 0)
	var walk func(int, map[string]string)
	walk = func(idx int, current map[string]string) {
		if idx >= len(keys) {
			item := map[string]string{}
			for k, v := range current {
				item[k] = v
			}
			combos = append(combos, item)
			return
		}
		key := keys[idx]
		for _, value := range normalized[key] {
			current[key] = value
			walk(idx+1, current)
		}
		delete(current, key)
	}
	walk(0, map[string]string{})
	return combos
}

// EvalWhen evaluates a condition against vars. Supported forms are a || b,
// a && b, comparisons with == != >= <= > <, and a bare operand tested for
// truthiness. An empty expression is true.
func EvalWhen(when string, vars map[string]string) bool {
	expr := strings.TrimSpace(when)
	if expr == "" {
		return true
	}
	for _, alt := range strings.Split(expr, "||") {
		all := true
		for _, term := range strings.Split(alt, "&&") {
			if !evalTerm(term, vars) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func evalTerm(term string, vars map[string]string) bool {
	expr := strings.TrimSpace(term)
	switch strings.ToLower(expr) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off", "":
		return false
	}
	if m := comparisonPattern.FindStringSubmatch(expr); m != nil {
		left := resolveWhenOperand(m[1], vars)
		right := resolveWhenOperand(m[3], vars)
		return compare(left, m[2], right)
	}
	value := resolveWhenOperand(expr, vars)
	value = strings.ToLower(strings.TrimSpace(value))
	return value != "" && value != "0" && value != "false" && value != "no" && value != "off"
}

func compare(left, op, right string) bool {
	lf, lerr := strconv.ParseFloat(left, 64)
	rf, rerr := strconv.ParseFloat(right, 64)
	numeric := lerr == nil && rerr == nil
	switch op {
	case "==":
		if numeric {
			return lf == rf
		}
		return left == right
	case "!=":
		if numeric {
			return lf != rf
		}
		return left != right
	}
	if !numeric {
		c := strings.Compare(left, right)
		switch op {
		case ">=":
			return c >= 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		default:
			return c < 0
		}
	}
	switch op {
	case ">=":
		return lf >= rf
	case "<=":
		return lf <= rf
	case ">":
		return lf > rf
	default:
		return lf < rf
	}
}

func resolveWhenOperand(token string, vars map[string]string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	if len(token) >= 2 {
		if (token[0] == '\'' && token[len(token)-1] == '\'') || (token[0] == '"' && token[len(token)-1] == '"') {
			return token[1 : len(token)-1]
		}
	}
	if v, ok := vars[token]; ok {
		return v
	}
	return token
}

// Render substitutes {{ var }} tokens in s. Unknown variables are an error.
func Render(s string, vars map[string]string) (string, error) {
	var missing string
	out := templateTokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		match := templateTokenPattern.FindStringSubmatch(token)
		if len(match) != 2 {
			return token
		}
		key := strings.TrimSpace(match[1])
		if value, ok := vars[key]; ok {
			return value
		}
		if missing == "" {
			missing = key
		}
		return ""
	})
	if missing != "" {
		return "", &UndefinedVariableError{Name: missing}
	}
	return out, nil
}

func applyResourceTemplateVars(res *Resource, vars map[string]string) error {
	if res == nil {
		return nil
	}
	var err error
	replaceString := func(v string) string {
		if err != nil {
			return v
		}
		out, rerr := Render(v, vars)
		if rerr != nil {
			err = rerr
			return v
		}
		return out
	}
	replaceSlice := func(in []string) []string {
		if len(in) == 0 {
			return in
		}
		out := make([]string, 0, len(in))
		for _, item := range in {
			out = append(out, replaceString(item))
		}
		return out
	}
	var replaceValue func(any) any
	replaceValue = func(v any) any {
		switch x := v.(type) {
		case string:
			return replaceString(x)
		case []any:
			out := make([]any, 0, len(x))
			for _, item := range x {
				out = append(out, replaceValue(item))
			}
			return out
		case map[string]any:
			out := make(map[string]any, len(x))
			for k, item := range x {
				out[k] = replaceValue(item)
			}
			return out
		default:
			return v
		}
	}

	res.ID = replaceString(res.ID)
	res.Title = replaceString(res.Title)
	res.DependsOn = replaceSlice(res.DependsOn)
	res.Require = replaceSlice(res.Require)
	res.Before = replaceSlice(res.Before)
	res.Notify = replaceSlice(res.Notify)
	res.Subscribe = replaceSlice(res.Subscribe)
	res.Tags = replaceSlice(res.Tags)
	for k, v := range res.Params {
		res.Params[k] = replaceValue(v)
	}
	return err
}

func appendMatrixSuffix(id string, vars map[string]string) string {
	base := sanitizeMatrixToken(id)
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)*2+1)
	parts = append(parts, base)
	for _, key := range keys {
		parts = append(parts, sanitizeMatrixToken(key), sanitizeMatrixToken(vars[key]))
	}
	return strings.Join(parts, "-")
}

func sanitizeMatrixToken(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "item"
	}
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "item"
	}
	return out
}
