// Package intent decodes the text an upstream engine or a user types into
// intents for the dispatcher.
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"jarvis/internal/domain"
)

var (
	ErrEmpty     = errors.New("nothing to do")
	ErrMalformed = errors.New("malformed intent")
)

// MacroCapability is the capability a "macro <name>" line expands to.
const MacroCapability = "run_macro"

// Parser turns text into intents. It accepts model tool-call JSON (a single
// call, an array, or an OpenAI "function" wrapper, optionally fenced or
// surrounded by prose) and command lines of the form
//
//	set_volume value=40
//	send_whatsapp_message recipient=mom message="running late"
//	set_volume 40
//	macro morning
type Parser struct {
	// ArgNames lists a capability's arguments in declared order. Bare
	// positional values on a command line are matched against it. May be nil.
	ArgNames func(capability string) []string
}

// Parse decodes text. JSON is tried first, then a command line.
func (p *Parser) Parse(text string) ([]domain.Intent, error) {
	text = strings.TrimSpace(stripRolePrefix(text))
	if text == "" {
		return nil, ErrEmpty
	}
	if intents := ExtractJSON(text); len(intents) > 0 {
		return intents, nil
	}
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "```") {
		return nil, fmt.Errorf("%w: no capability name in JSON", ErrMalformed)
	}
	in, err := p.parseCommand(text)
	if err != nil {
		return nil, err
	}
	return []domain.Intent{in}, nil
}

// ExtractJSON finds tool calls encoded as JSON in content.
func ExtractJSON(content string) []domain.Intent {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		lines := strings.Split(content, "\n")
		if len(lines) >= 3 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
			content = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	if intents := tryParseCalls(content); len(intents) > 0 {
		return intents
	}
	if start, end := findJSONBounds(content); start >= 0 && end > start {
		if intents := tryParseCalls(content[start:end]); len(intents) > 0 {
			return intents
		}
	}
	return nil
}

// call covers the shapes models use for a tool call.
type call struct {
	Name       string         `json:"name"`
	Capability string         `json:"capability"`
	Parameters map[string]any `json:"parameters"`
	Arguments  any            `json:"arguments"`
	Args       map[string]any `json:"args"`
	Function   *struct {
		Name      string `json:"name"`
		Arguments any    `json:"arguments"`
	} `json:"function"`
}

func (c call) intent() (domain.Intent, bool) {
	name := c.Capability
	if name == "" {
		name = c.Name
	}
	args := c.Args
	if args == nil {
		args = c.Parameters
	}
	if args == nil {
		args = decodeArguments(c.Arguments)
	}
	if c.Function != nil && name == "" {
		name = c.Function.Name
		args = decodeArguments(c.Function.Arguments)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Intent{}, false
	}
	if args == nil {
		args = make(map[string]any)
	}
	return domain.Intent{Capability: name, Args: args}, true
}

// decodeArguments accepts an object or a JSON-encoded object string, which is
// how the OpenAI wire format carries arguments.
func decodeArguments(v any) map[string]any {
	switch a := v.(type) {
	case map[string]any:
		return a
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(a), &m); err == nil {
			return m
		}
		if err := json.Unmarshal([]byte(sanitizeJSONEscapes(a)), &m); err == nil {
			return m
		}
	}
	return nil
}

func tryParseCalls(raw string) []domain.Intent {
	text := raw
	var single call
	if err := json.Unmarshal([]byte(text), &single); err != nil {
		text = sanitizeJSONEscapes(raw)
		_ = json.Unmarshal([]byte(text), &single)
	}
	if in, ok := single.intent(); ok {
		return []domain.Intent{in}
	}

	var wrapped struct {
		ToolCalls []call `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && len(wrapped.ToolCalls) > 0 {
		return collect(wrapped.ToolCalls)
	}

	var multi []call
	if err := json.Unmarshal([]byte(text), &multi); err != nil {
		return nil
	}
	return collect(multi)
}

func collect(calls []call) []domain.Intent {
	var intents []domain.Intent
	for _, c := range calls {
		if in, ok := c.intent(); ok {
			intents = append(intents, in)
		}
	}
	return intents
}

// findJSONBounds locates the first top-level JSON object or array in s and
// returns its start and end+1 index, or (-1, -1).
func findJSONBounds(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}
	openChar := s[start]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case openChar:
			depth++
		case closeChar:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

// sanitizeJSONEscapes drops the backslash from escape sequences JSON does not
// allow, such as \% or \Y.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
				buf.WriteByte(s[i+1])
				i++
			}
			continue
		}
		buf.WriteByte(ch)
	}
	return buf.String()
}

func stripRolePrefix(content string) string {
	for _, p := range []string{"assistant\n", "Assistant\n", "assistant:", "Assistant:"} {
		if strings.HasPrefix(content, p) {
			return strings.TrimSpace(content[len(p):])
		}
	}
	return content
}

func (p *Parser) parseCommand(line string) (domain.Intent, error) {
	fields, err := splitFields(line)
	if err != nil {
		return domain.Intent{}, err
	}
	if len(fields) == 0 {
		return domain.Intent{}, ErrEmpty
	}

	name := fields[0]
	rest := fields[1:]
	if strings.EqualFold(name, "macro") {
		if len(rest) != 1 {
			return domain.Intent{}, fmt.Errorf("%w: usage: macro <name>", ErrMalformed)
		}
		return domain.Intent{Capability: MacroCapability, Args: map[string]any{"macro_name": rest[0]}}, nil
	}

	args := make(map[string]any)
	var positional []string
	for _, f := range rest {
		if k, v, ok := strings.Cut(f, "="); ok && isArgName(k) {
			if _, dup := args[k]; dup {
				return domain.Intent{}, fmt.Errorf("%w: argument %q given twice", ErrMalformed, k)
			}
			args[k] = v
			continue
		}
		positional = append(positional, f)
	}

	if len(positional) > 0 {
		var names []string
		if p.ArgNames != nil {
			names = p.ArgNames(name)
		}
		var free []string
		for _, n := range names {
			if _, set := args[n]; !set {
				free = append(free, n)
			}
		}
		switch {
		case len(free) == 0:
			return domain.Intent{}, fmt.Errorf("%w: %s takes no positional arguments", ErrMalformed, name)
		case len(positional) > len(free):
			// Extra words join the last free argument: send_whatsapp_message mom running late
			last := len(free) - 1
			for i := 0; i < last; i++ {
				args[free[i]] = positional[i]
			}
			args[free[last]] = strings.Join(positional[last:], " ")
		default:
			for i, v := range positional {
				args[free[i]] = v
			}
		}
	}
	return domain.Intent{Capability: name, Args: args}, nil
}

func isArgName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// splitFields splits a command line on spaces, honouring double and single
// quotes and backslash escapes inside double quotes.
func splitFields(line string) ([]string, error) {
	var (
		fields  []string
		cur     strings.Builder
		inField bool
		quote   rune
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			if r == '\\' && quote == '"' && i+1 < len(runes) {
				i++
				cur.WriteRune(runes[i])
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inField = true
		case unicode.IsSpace(r):
			if inField {
				fields = append(fields, cur.String())
				cur.Reset()
				inField = false
			}
		default:
			cur.WriteRune(r)
			inField = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("%w: unterminated quote", ErrMalformed)
	}
	if inField {
		fields = append(fields, cur.String())
	}
	return fields, nil
}
