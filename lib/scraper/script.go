package scraper

import (
	"errors"
	"regexp"

	"github.com/titanous/json5"
)

// ScriptArrayPattern matches the text right up to (and including) the
// opening bracket of an embedded array, e.g. `animals = [`.
func ScriptArrayPattern(keys ...string) *regexp.Regexp {
	alternatives := ""
	for i, k := range keys {
		if i > 0 {
			alternatives += "|"
		}
		alternatives += regexp.QuoteMeta(k)
	}
	return regexp.MustCompile(`["']?(?:` + alternatives + `)["']?\s*[:=]\s*\[`)
}

var errUnbalanced = errors.New("unbalanced brackets")

// balancedLiteral returns the array or object literal starting at
// src[start], skipping over brackets inside string literals.
func balancedLiteral(src string, start int) (string, error) {
	if start < 0 || start >= len(src) || (src[start] != '[' && src[start] != '{') {
		return "", errUnbalanced
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return src[start : i+1], nil
			}
		}
	}
	return "", errUnbalanced
}

// ExtractScriptValues decodes the object or array literal that follows
// every match of pattern inside script sources, pattern must end at the
// literal's opening bracket. Literals that are not strict JSON are
// retried as JSON5, which accepts most hand-written javascript object
// literals. Unparseable literals are skipped.
func ExtractScriptValues(scripts []string, pattern *regexp.Regexp) ([]any, []error) {
	var out []any
	var errs []error
	for _, script := range scripts {
		for _, loc := range pattern.FindAllStringIndex(script, -1) {
			literal, err := balancedLiteral(script, loc[1]-1)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			v, err := DecodeJSON([]byte(literal))
			if err != nil {
				var loose any
				if err5 := json5.Unmarshal([]byte(literal), &loose); err5 != nil {
					errs = append(errs, err)
					continue
				}
				v = loose
			}
			out = append(out, v)
		}
	}
	return out, errs
}

// ExtractScriptArrays finds arrays of objects assigned to one of the
// keys matched by pattern (see ScriptArrayPattern).
func ExtractScriptArrays(scripts []string, pattern *regexp.Regexp) ([]Record, []error) {
	values, errs := ExtractScriptValues(scripts, pattern)
	var out []Record
	for _, v := range values {
		out = append(out, Records(v)...)
	}
	return out, errs
}
