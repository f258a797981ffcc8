package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Options is a loosely-typed option bag decoded from pipeline JSON.
// Accessors are lenient: wrong or missing types fall back to the default so a
// hand-edited config degrades gracefully instead of failing deep in a run.
type Options map[string]any

// Bool returns a boolean option. Accepts JSON booleans and the usual string
// spellings ("true", "1", "yes").
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true
		case "false", "0", "no", "n":
			return false
		}
	}
	return def
}

// String returns a string option, or def when absent/empty.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// Int returns an integer option. JSON numbers decode as float64; numeric
// strings are parsed as a convenience.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string option, for things like the CSV
// field delimiter.
func (o Options) Rune(key string, def rune) rune {
	s := o.String(key, "")
	if s == "" {
		return def
	}
	return []rune(s)[0]
}

// StringMap returns a map-of-strings option (e.g. a header rename map).
// Non-string values are stringified with fmt.Sprint.
func (o Options) StringMap(key string) map[string]string {
	v, ok := o[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case map[string]string:
		return t
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok {
				out[k] = s
				continue
			}
			out[k] = fmt.Sprint(val)
		}
		return out
	}
	return nil
}
