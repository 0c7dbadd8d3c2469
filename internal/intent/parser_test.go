package intent

import (
	"errors"
	"testing"

	"jarvis/internal/domain"
)

func argNames(capability string) []string {
	switch capability {
	case "set_volume":
		return []string{"value"}
	case "send_whatsapp_message":
		return []string{"recipient", "message"}
	case "get_date_and_time":
		return nil
	}
	return nil
}

func parse(t *testing.T, text string) []domain.Intent {
	t.Helper()
	p := &Parser{ArgNames: argNames}
	intents, err := p.Parse(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	return intents
}

func TestParse_JSONShapes(t *testing.T) {
	tests := []struct {
		name string
		text string
		cap  string
		arg  string
		want any
	}{
		{"name+arguments", `{"name":"set_volume","arguments":{"value":40}}`, "set_volume", "value", 40.0},
		{"name+parameters", `{"name":"set_volume","parameters":{"value":"40"}}`, "set_volume", "value", "40"},
		{"capability+args", `{"capability":"get_weather","args":{"city":"Paris"}}`, "get_weather", "city", "Paris"},
		{"openai function", `{"type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Oslo\"}"}}`, "get_weather", "city", "Oslo"},
		{"code fence", "```json\n{\"name\":\"get_weather\",\"arguments\":{\"city\":\"Rome\"}}\n```", "get_weather", "city", "Rome"},
		{"prose around", "Sure, doing that now.\n{\"name\":\"get_weather\",\"arguments\":{\"city\":\"Lima\"}}\nOne moment.", "get_weather", "city", "Lima"},
		{"role prefix", "assistant\n{\"name\":\"get_weather\",\"arguments\":{\"city\":\"Kyiv\"}}", "get_weather", "city", "Kyiv"},
		{"bad escape", `{"name":"search_google","arguments":{"query":"100\% cotton"}}`, "search_google", "query", "100% cotton"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := parse(t, tt.text)
			if len(intents) != 1 {
				t.Fatalf("expected 1 intent, got %d", len(intents))
			}
			if intents[0].Capability != tt.cap {
				t.Fatalf("expected capability %q, got %q", tt.cap, intents[0].Capability)
			}
			if got := intents[0].Args[tt.arg]; got != tt.want {
				t.Fatalf("expected %s=%#v, got %#v", tt.arg, tt.want, got)
			}
		})
	}
}

func TestParse_JSONArrayAndToolCalls(t *testing.T) {
	arr := parse(t, `[{"name":"open_desktop"},{"name":"take_screenshot","arguments":{"filename":"a.png"}}]`)
	if len(arr) != 2 || arr[0].Capability != "open_desktop" || arr[1].Args["filename"] != "a.png" {
		t.Fatalf("unexpected intents: %+v", arr)
	}
	if arr[0].Args == nil {
		t.Fatal("args should never be nil")
	}

	wrapped := parse(t, `{"tool_calls":[{"function":{"name":"get_joke","arguments":"{}"}}]}`)
	if len(wrapped) != 1 || wrapped[0].Capability != "get_joke" {
		t.Fatalf("unexpected intents: %+v", wrapped)
	}
}

func TestParse_JSONWithoutName(t *testing.T) {
	_, err := (&Parser{}).Parse(`{"arguments":{"value":1}}`)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParse_CommandLine(t *testing.T) {
	intents := parse(t, `send_whatsapp_message recipient=mom message="running late, sorry"`)
	in := intents[0]
	if in.Capability != "send_whatsapp_message" {
		t.Fatalf("unexpected capability %q", in.Capability)
	}
	if in.Args["recipient"] != "mom" || in.Args["message"] != "running late, sorry" {
		t.Fatalf("unexpected args: %v", in.Args)
	}
}

func TestParse_Positional(t *testing.T) {
	in := parse(t, "set_volume 40")[0]
	if in.Args["value"] != "40" {
		t.Fatalf("expected value=40, got %v", in.Args)
	}

	in = parse(t, "send_whatsapp_message mom running late")[0]
	if in.Args["recipient"] != "mom" || in.Args["message"] != "running late" {
		t.Fatalf("unexpected args: %v", in.Args)
	}

	in = parse(t, "send_whatsapp_message message=hi +15551234567")[0]
	if in.Args["recipient"] != "+15551234567" || in.Args["message"] != "hi" {
		t.Fatalf("unexpected args: %v", in.Args)
	}
}

func TestParse_PositionalWithoutArguments(t *testing.T) {
	_, err := (&Parser{ArgNames: argNames}).Parse("get_date_and_time now")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParse_NoArgs(t *testing.T) {
	in := parse(t, "get_date_and_time")[0]
	if in.Capability != "get_date_and_time" || len(in.Args) != 0 {
		t.Fatalf("unexpected intent: %+v", in)
	}
}

func TestParse_Macro(t *testing.T) {
	in := parse(t, "macro morning")[0]
	if in.Capability != MacroCapability || in.Args["macro_name"] != "morning" {
		t.Fatalf("unexpected intent: %+v", in)
	}
	if _, err := (&Parser{}).Parse("macro"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	p := &Parser{ArgNames: argNames}
	if _, err := p.Parse("   "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := p.Parse(`set_volume value="40`); !errors.Is(err, ErrMalformed) {
		t.Fatalf("unterminated quote: expected ErrMalformed, got %v", err)
	}
	if _, err := p.Parse("set_volume value=1 value=2"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("repeated arg: expected ErrMalformed, got %v", err)
	}
}

func TestSplitFields(t *testing.T) {
	got, err := splitFields(`a 'b c' "d \"e\"" f=g`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b c", `d "e"`, "f=g"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("field %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestFindJSONBounds(t *testing.T) {
	s := `prefix {"a":"}"} suffix`
	start, end := findJSONBounds(s)
	if s[start:end] != `{"a":"}"}` {
		t.Fatalf("unexpected bounds: %q", s[start:end])
	}
	if start, _ := findJSONBounds("no json"); start != -1 {
		t.Fatal("expected -1 for no JSON")
	}
}
