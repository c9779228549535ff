// Package template evaluates the `{{ expr }}` expressions embedded in
// pipeline parameters, gating conditions, and env overlays against the
// current run context. Expressions are CEL, built fresh per evaluation
// against a variable set matching the context keys actually present, so
// referencing an undeclared name fails compilation rather than silently
// producing an empty string.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
)

var exprPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// truthy values recognized by EvalBool, matching the original runner's
// literal string comparison (trim, lowercase).
var truthyValues = map[string]bool{
	"true": true,
	"1":    true,
	"yes":  true,
}

// eval compiles and runs a single CEL expression against ctx, returning the
// raw result value.
func eval(expr string, ctx map[string]any) (any, error) {
	opts := make([]cel.EnvOption, 0, len(ctx))
	for name := range ctx {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("building expression environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building expression program: %w", err)
	}

	out, _, err := prg.Eval(ctx)
	if err != nil {
		return nil, err
	}

	// out.Value() already unwraps CEL's ref.Val wrapper to the native Go
	// representation (int64, float64, bool, string, map, slice).
	return out.Value(), nil
}

// RenderValue renders a single template string. If s is exactly one
// `{{ expr }}` with no surrounding literal text, the raw evaluated value is
// returned with its native Go type preserved (int64, float64, bool, string,
// map, slice). Otherwise it behaves like Render and returns a string.
func RenderValue(s string, ctx map[string]any) (any, error) {
	matches := exprPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := s[matches[0][2]:matches[0][3]]
		val, err := eval(expr, ctx)
		if err != nil {
			return nil, err
		}
		return val, nil
	}
	return Render(s, ctx)
}

// Render substitutes every `{{ expr }}` occurrence in s with the string form
// of its evaluated result, returning plain text.
func Render(s string, ctx map[string]any) (string, error) {
	var firstErr error
	result := exprPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := exprPattern.FindStringSubmatch(match)
		val, err := eval(sub[1], ctx)
		if err != nil {
			firstErr = err
			return match
		}
		return stringify(val)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// EvalBool renders s and applies the literal truthiness rule: trim,
// lowercase, and compare against {"true", "1", "yes"}.
func EvalBool(s string, ctx map[string]any) (bool, error) {
	rendered, err := Render(s, ctx)
	if err != nil {
		return false, err
	}
	normalized := strings.ToLower(strings.TrimSpace(rendered))
	return truthyValues[normalized], nil
}

// RenderTree walks a params tree (map[string]any / []any / scalars),
// rendering every string leaf with RenderValue and leaving non-string leaves
// untouched.
func RenderTree(node any, ctx map[string]any) (any, error) {
	switch v := node.(type) {
	case string:
		return RenderValue(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			rendered, err := RenderTree(val, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderTree(val, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return node, nil
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
