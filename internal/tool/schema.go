package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"jarvis/internal/domain"
)

// ValidationError names the argument that failed schema validation.
type ValidationError struct {
	Arg    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Reason)
}

// Validate checks raw intent arguments against specs and returns the coerced
// arguments. Optional arguments with a default are filled in when absent.
func Validate(specs []domain.ArgSpec, raw map[string]any) (domain.Args, error) {
	known := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		known[s.Name] = struct{}{}
	}
	var unknown []string
	for name := range raw {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ValidationError{Arg: unknown[0], Reason: "is not an argument of this capability"}
	}

	args := make(domain.Args, len(specs))
	for _, spec := range specs {
		v, present := raw[spec.Name]
		if present && isBlank(v) {
			present = false
		}
		if !present {
			if spec.Required {
				return nil, &ValidationError{Arg: spec.Name, Reason: "is required"}
			}
			if spec.Default != nil {
				args[spec.Name] = spec.Default
			}
			continue
		}

		coerced, err := Coerce(spec.Kind, v)
		if err != nil {
			return nil, &ValidationError{Arg: spec.Name, Reason: err.Error()}
		}
		if spec.Constraint != nil {
			coerced, err = spec.Constraint.Apply(coerced)
			if err != nil {
				return nil, &ValidationError{Arg: spec.Name, Reason: err.Error()}
			}
		}
		args[spec.Name] = coerced
	}
	return args, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Coerce converts a loosely typed value into the Go type for kind:
// string, int, float64 or bool.
func Coerce(kind domain.Kind, v any) (any, error) {
	switch kind {
	case domain.KindString:
		return coerceString(v)
	case domain.KindInteger:
		return coerceInt(v)
	case domain.KindNumber:
		return coerceFloat(v)
	case domain.KindBoolean:
		return coerceBool(v)
	default:
		return nil, fmt.Errorf("has unsupported kind %q", kind)
	}
}

func coerceString(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), nil
	case bool, int, int64, float64, json.Number:
		return fmt.Sprint(s), nil
	default:
		return nil, fmt.Errorf("must be text")
	}
}

func coerceInt(v any) (any, error) {
	var f float64
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("must be a whole number")
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.Atoi(s); err == nil {
			return i, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a whole number")
		}
		f = parsed
	default:
		return nil, fmt.Errorf("must be a whole number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("must be a whole number")
	}
	return int(f), nil
}

func coerceFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("must be a number")
		}
		return f, nil
	default:
		return nil, fmt.Errorf("must be a number")
	}
}

func coerceBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
	}
	return nil, fmt.Errorf("must be true or false")
}

// --- Constraints ---

// Range bounds a numeric argument, inclusive on both ends.
type Range struct {
	Min, Max float64
}

func (r Range) Apply(v any) (any, error) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case float64:
		f = n
	default:
		return nil, fmt.Errorf("must be a number")
	}
	if f < r.Min || f > r.Max {
		return nil, fmt.Errorf("must be between %g and %g", r.Min, r.Max)
	}
	return v, nil
}

func (r Range) Schema(prop map[string]any) {
	prop["minimum"] = r.Min
	prop["maximum"] = r.Max
}

// OneOf restricts a string argument to an enumerated set. Matching ignores
// case and the declared spelling is passed to the handler.
type OneOf []string

func (o OneOf) Apply(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("must be one of: %s", strings.Join(o, ", "))
	}
	for _, allowed := range o {
		if strings.EqualFold(s, allowed) {
			return allowed, nil
		}
	}
	return nil, fmt.Errorf("must be one of: %s", strings.Join(o, ", "))
}

func (o OneOf) Schema(prop map[string]any) {
	prop["enum"] = []string(o)
}

// Pattern requires a string argument to match a regular expression.
type Pattern struct {
	Re   *regexp.Regexp
	Hint string // human wording, e.g. "a phone number like +1234567890"
}

func (p Pattern) Apply(v any) (any, error) {
	s, ok := v.(string)
	if !ok || !p.Re.MatchString(s) {
		if p.Hint != "" {
			return nil, fmt.Errorf("must be %s", p.Hint)
		}
		return nil, fmt.Errorf("must match %s", p.Re.String())
	}
	return s, nil
}

func (p Pattern) Schema(prop map[string]any) {
	prop["pattern"] = p.Re.String()
}

// MaxLength caps the length of a string argument in characters.
type MaxLength int

func (m MaxLength) Apply(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("must be text")
	}
	if len([]rune(s)) > int(m) {
		return nil, fmt.Errorf("must be at most %d characters", int(m))
	}
	return s, nil
}

func (m MaxLength) Schema(prop map[string]any) {
	prop["maxLength"] = int(m)
}

// ToolParameters builds a JSON Schema "parameters" object for a capability.
func ToolParameters(specs []domain.ArgSpec) map[string]any {
	props := make(map[string]any, len(specs))
	var required []string
	for _, s := range specs {
		prop := map[string]any{"type": string(s.Kind), "description": s.Description}
		if s.Default != nil {
			prop["default"] = s.Default
		}
		if s.Constraint != nil {
			s.Constraint.Schema(prop)
		}
		props[s.Name] = prop
		if s.Required {
			required = append(required, s.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
