package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// tree is the config as generic JSON, keyed by the json tag names.
type tree = map[string]any

func toTree(cfg *Config) (tree, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var t tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetByPath returns the value at a dotted path such as "paths.contacts" or
// "channels.telegram.allowFrom.0".
func GetByPath(cfg *Config, path string) (any, error) {
	t, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	var node any = t
	for _, key := range strings.Split(path, ".") {
		switch v := node.(type) {
		case tree:
			next, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			node = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(v) {
				return nil, fmt.Errorf("invalid array index %q in %s", key, path)
			}
			node = v[i]
		default:
			return nil, fmt.Errorf("%s: %q is not a section", path, key)
		}
	}
	return node, nil
}

// SetByPath assigns value at a dotted path. String values are converted to
// booleans and numbers when they parse as such. Paths that do not name a
// config field are rejected.
func SetByPath(cfg *Config, path string, value any) error {
	keys := strings.Split(path, ".")
	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("invalid path %q", path)
		}
	}
	t, err := toTree(cfg)
	if err != nil {
		return err
	}

	section := t
	for _, k := range keys[:len(keys)-1] {
		switch child := section[k].(type) {
		case tree:
			section = child
		case nil:
			// Sections whose fields are all omitempty and unset do not appear.
			fresh := tree{}
			section[k] = fresh
			section = fresh
		default:
			return fmt.Errorf("%s: %q is not a section", path, k)
		}
	}
	leaf := keys[len(keys)-1]
	section[leaf] = convertValue(value)
	updated, err := decodeStrict(t)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		// "12345" for a string field: keep the raw value.
		section[leaf] = value
		updated, err = decodeStrict(t)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	*cfg = *updated
	return nil
}

func decodeStrict(t tree) (*Config, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func convertValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a copy of cfg with API keys and tokens masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Channels.Telegram.AllowFrom = append(FlexStringList(nil), cfg.Channels.Telegram.AllowFrom...)
	out.Channels.Discord.AllowFrom = append(FlexStringList(nil), cfg.Channels.Discord.AllowFrom...)
	out.Channels.Slack.AllowFrom = append(FlexStringList(nil), cfg.Channels.Slack.AllowFrom...)
	for _, secret := range []*string{
		&out.Services.WeatherAPIKey,
		&out.Services.NewsAPIKey,
		&out.Services.WhatsApp.AccessToken,
		&out.Channels.Telegram.Token,
		&out.Channels.Discord.Token,
		&out.Channels.Slack.BotToken,
		&out.Channels.Slack.AppToken,
		&out.Channels.WebSocket.Token,
	} {
		if *secret != "" {
			*secret = maskString(*secret)
		}
	}
	return &out
}

// maskString keeps the first and last four characters of long secrets.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens cfg into dotted paths and their values.
func ListPaths(cfg *Config) map[string]any {
	t, err := toTree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	var walk func(prefix string, t tree)
	walk = func(prefix string, t tree) {
		for k, v := range t {
			if prefix != "" {
				k = prefix + "." + k
			}
			if sub, ok := v.(tree); ok {
				walk(k, sub)
				continue
			}
			out[k] = v
		}
	}
	walk("", t)
	return out
}
