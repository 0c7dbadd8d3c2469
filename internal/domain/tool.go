package domain

import (
	"context"
	"fmt"
	"strconv"
)

// Kind is the declared type of a capability argument.
type Kind string

const (
	KindString  Kind = "string"
	KindInteger Kind = "integer"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Constraint restricts the values an argument may take once coerced to its Kind.
type Constraint interface {
	// Apply checks v and returns its canonical form, or a short reason it is not allowed.
	Apply(v any) (any, error)
	// Schema adds the constraint's JSON-schema keywords to an argument's property object.
	Schema(prop map[string]any)
}

// ArgSpec declares one argument of a capability.
type ArgSpec struct {
	Name        string
	Kind        Kind
	Required    bool
	Default     any
	Description string
	Constraint  Constraint
}

// Payload is what a handler returns on success.
type Payload struct {
	Message string
	Data    map[string]any
}

// Handler performs one capability. It only ever receives arguments that passed
// the capability's schema, and reports failure through the returned error.
type Handler func(ctx context.Context, args Args) (Payload, error)

// Descriptor identifies one invocable action.
type Descriptor struct {
	Name        string
	Description string
	Args        []ArgSpec
	// Scopes lists the delegated-authority scopes the handler may request.
	Scopes  []string
	Handler Handler
}

// ToolDefinition is the catalog entry handed to the upstream language model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Args holds validated, coerced arguments keyed by argument name.
type Args map[string]any

func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (a Args) Int(name string) int {
	switch v := a[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func (a Args) Float(name string) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}
