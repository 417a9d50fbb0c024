package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Record is one loosely shaped JSON object from a third party. Every
// accessor takes a list of aliases, the first one present wins.
type Record map[string]any

func scalarString(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// String returns the first non-empty scalar under keys as a string.
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		if s := scalarString(r[k]); s != "" {
			return s
		}
	}
	return ""
}

// Int returns the first value under keys that can be read as an integer.
func (r Record) Int(keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := r[k].(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n), true
			}
			if f, err := v.Float64(); err == nil {
				return int(f), true
			}
		case float64:
			return int(v), true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// Bool reads a tri-state flag, accepting booleans, 0/1 and yes/no style
// strings. nil means none of the keys held a recognizable value.
func (r Record) Bool(keys ...string) *bool {
	for _, k := range keys {
		switch v := r[k].(type) {
		case bool:
			return &v
		case json.Number:
			b := v.String() != "0"
			return &b
		case float64:
			b := v != 0
			return &b
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "y", "1":
				b := true
				return &b
			case "false", "no", "n", "0":
				b := false
				return &b
			}
		}
	}
	return nil
}

func (r Record) Has(keys ...string) bool {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return true
		}
	}
	return false
}

// Child returns the first nested object under keys.
func (r Record) Child(keys ...string) Record {
	for _, k := range keys {
		if m, ok := r[k].(map[string]any); ok {
			return Record(m)
		}
	}
	return nil
}

// Photos collects image urls under keys in order. Each value may be a url
// string, an object holding the url, or a list of either.
func (r Record) Photos(keys ...string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	var visit func(v any)
	visit = func(v any) {
		switch v := v.(type) {
		case string:
			add(strings.TrimSpace(v))
		case map[string]any:
			add(Record(v).String("url", "large", "full", "medium", "src", "small"))
		case []any:
			for _, item := range v {
				visit(item)
			}
		}
	}
	for _, k := range keys {
		visit(r[k])
	}
	return out
}

// Records keeps the objects of a decoded JSON list.
func Records(v any) []Record {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// DecodeJSON decodes any JSON document, numbers are kept as json.Number.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	err := dec.Decode(&v)
	return v, err
}

var ErrUnexpectedShape = errors.New("unexpected json shape")

// ParseRecords decodes a list of objects from a JSON document that is
// either the list itself or an object holding it under one of
// containerKeys. Container keys may be dotted paths ("data.animals").
func ParseRecords(data []byte, containerKeys ...string) ([]Record, error) {
	v, err := DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if list, ok := v.([]any); ok {
		return Records(list), nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrUnexpectedShape
	}
	for _, key := range containerKeys {
		if list, ok := lookupPath(obj, key).([]any); ok {
			return Records(list), nil
		}
	}
	return nil, ErrUnexpectedShape
}

func lookupPath(obj map[string]any, path string) any {
	var current any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
