package tool

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"jarvis/internal/domain"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.Kind
		in      any
		want    any
		wantErr bool
	}{
		{"string trims", domain.KindString, "  chrome ", "chrome", false},
		{"string from number", domain.KindString, 42.0, "42", false},
		{"string rejects slice", domain.KindString, []string{"x"}, nil, true},
		{"int from float", domain.KindInteger, 50.0, 50, false},
		{"int from string", domain.KindInteger, " 7 ", 7, false},
		{"int from decimal string", domain.KindInteger, "42.0", 42, false},
		{"int from json.Number", domain.KindInteger, json.Number("12"), 12, false},
		{"int rejects fraction", domain.KindInteger, 1.5, nil, true},
		{"int rejects words", domain.KindInteger, "loud", nil, true},
		{"number from string", domain.KindNumber, "2.5", 2.5, false},
		{"number from int", domain.KindNumber, 3, 3.0, false},
		{"number rejects words", domain.KindNumber, "abc", nil, true},
		{"bool true", domain.KindBoolean, true, true, false},
		{"bool yes", domain.KindBoolean, "Yes", true, false},
		{"bool off", domain.KindBoolean, "off", false, false},
		{"bool rejects words", domain.KindBoolean, "maybe", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.kind, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func volumeSpecs() []domain.ArgSpec {
	return []domain.ArgSpec{
		{Name: "value", Kind: domain.KindInteger, Required: true, Constraint: Range{Min: 0, Max: 100}},
		{Name: "state", Kind: domain.KindString, Default: "mute", Constraint: OneOf{"mute", "unmute"}},
	}
}

func TestValidate_CoercesAndFillsDefaults(t *testing.T) {
	args, err := Validate(volumeSpecs(), map[string]any{"value": "80"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if args.Int("value") != 80 {
		t.Fatalf("expected value=80, got %v", args["value"])
	}
	if args.String("state") != "mute" {
		t.Fatalf("expected default state=mute, got %v", args["state"])
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	_, err := Validate(volumeSpecs(), map[string]any{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Arg != "value" {
		t.Fatalf("expected offending arg 'value', got %q", ve.Arg)
	}
}

func TestValidate_BlankCountsAsMissing(t *testing.T) {
	_, err := Validate(volumeSpecs(), map[string]any{"value": "   "})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Arg != "value" {
		t.Fatalf("expected ValidationError for 'value', got %v", err)
	}
}

func TestValidate_RangeViolation(t *testing.T) {
	for _, v := range []any{-1, 101, "150"} {
		_, err := Validate(volumeSpecs(), map[string]any{"value": v})
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Arg != "value" {
			t.Fatalf("value=%v: expected ValidationError for 'value', got %v", v, err)
		}
	}
}

func TestValidate_RangeBoundaries(t *testing.T) {
	for _, v := range []any{0, 100} {
		if _, err := Validate(volumeSpecs(), map[string]any{"value": v}); err != nil {
			t.Fatalf("value=%v should be valid: %v", v, err)
		}
	}
}

func TestValidate_OneOfCanonicalizes(t *testing.T) {
	args, err := Validate(volumeSpecs(), map[string]any{"value": 1, "state": "UNMUTE"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if args.String("state") != "unmute" {
		t.Fatalf("expected canonical 'unmute', got %q", args.String("state"))
	}

	_, err = Validate(volumeSpecs(), map[string]any{"value": 1, "state": "louder"})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Arg != "state" {
		t.Fatalf("expected ValidationError for 'state', got %v", err)
	}
}

func TestValidate_UnknownArgument(t *testing.T) {
	_, err := Validate(volumeSpecs(), map[string]any{"value": 1, "volume": 3})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Arg != "volume" {
		t.Fatalf("expected ValidationError for 'volume', got %v", err)
	}
}

func TestPattern(t *testing.T) {
	p := Pattern{Re: regexp.MustCompile(`^\+[0-9]+$`), Hint: "a phone number like +1234567890"}
	if _, err := p.Apply("+15551234567"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	_, err := p.Apply("555-1234")
	if err == nil || err.Error() != "must be a phone number like +1234567890" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMaxLength(t *testing.T) {
	if _, err := MaxLength(3).Apply("héé"); err != nil {
		t.Fatalf("3 runes should pass: %v", err)
	}
	if _, err := MaxLength(3).Apply("four"); err == nil {
		t.Fatal("expected error for 4 characters")
	}
}

// --- ToolParameters ---

func TestToolParameters_WithRequired(t *testing.T) {
	params := ToolParameters(volumeSpecs())

	if params["type"] != "object" {
		t.Fatal("expected type=object")
	}
	props := params["properties"].(map[string]any)
	if len(props) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(props))
	}
	state := props["state"].(map[string]any)
	if enum := state["enum"].([]string); len(enum) != 2 {
		t.Fatalf("expected enum of 2, got %v", enum)
	}
	if state["default"] != "mute" {
		t.Fatalf("expected default 'mute', got %v", state["default"])
	}

	required := params["required"].([]string)
	if len(required) != 1 || required[0] != "value" {
		t.Fatalf("unexpected required: %v", required)
	}
}

func TestToolParameters_NoRequired(t *testing.T) {
	params := ToolParameters([]domain.ArgSpec{{Name: "query", Kind: domain.KindString}})
	if _, ok := params["required"]; ok {
		t.Fatal("should not have 'required' key when nothing is required")
	}
}
