// Package structured implements schema-constrained generation: request
// construction for each of the engine's extraction modes, and progressive
// partial-JSON parsing of a streaming response into a sequence of
// increasingly complete values.
package structured

import (
	"encoding/json"
	"strings"
)

// ParseState reports how a partial JSON parse attempt resolved.
type ParseState string

const (
	ParseUndefinedInput ParseState = "undefined-input"
	ParseSuccessful     ParseState = "successful-parse"
	ParseRepaired       ParseState = "repaired-parse"
	ParseFailed         ParseState = "failed-parse"
)

// ParseResult is the outcome of ParsePartialJSON.
type ParseResult struct {
	Value interface{}
	State ParseState
	Err   error
}

// ParsePartialJSON parses possibly-incomplete JSON text as it arrives from
// a streaming response. It first tries a direct parse; on failure it
// repairs the text with RepairJSON (closing unterminated strings, objects,
// and arrays) and retries once.
func ParsePartialJSON(text string) ParseResult {
	if text == "" {
		return ParseResult{State: ParseUndefinedInput}
	}

	var value interface{}
	if err := json.Unmarshal([]byte(text), &value); err == nil {
		return ParseResult{Value: value, State: ParseSuccessful}
	}

	repaired := RepairJSON(text)
	if repaired == "" {
		return ParseResult{State: ParseFailed}
	}

	err := json.Unmarshal([]byte(repaired), &value)
	if err != nil {
		return ParseResult{State: ParseFailed, Err: err}
	}
	return ParseResult{Value: value, State: ParseRepaired}
}

// RepairJSON closes unterminated strings, objects, and arrays in a
// truncated JSON document, dropping a dangling trailing comma, so it can be
// parsed as a valid (if incomplete) value. It tracks string and escape-character state so a literal `{` or
// `[` inside a string is never mistaken for an open structure.
func RepairJSON(text string) string {
	if text == "" {
		return ""
	}

	var openStack []rune
	inString := false
	escaped := false
	lastValidIndex := -1

	for i := 0; i < len(text); i++ {
		c := rune(text[i])

		if escaped {
			escaped = false
			lastValidIndex = i
			continue
		}

		if c == '\\' && inString {
			escaped = true
			lastValidIndex = i
			continue
		}

		if c == '"' {
			inString = !inString
			lastValidIndex = i
			continue
		}

		if inString {
			lastValidIndex = i
			continue
		}

		switch c {
		case '{', '[':
			openStack = append(openStack, c)
			lastValidIndex = i
		case '}':
			if len(openStack) > 0 && openStack[len(openStack)-1] == '{' {
				openStack = openStack[:len(openStack)-1]
				lastValidIndex = i
			}
		case ']':
			if len(openStack) > 0 && openStack[len(openStack)-1] == '[' {
				openStack = openStack[:len(openStack)-1]
				lastValidIndex = i
			}
		case ',', ':', ' ', '\t', '\n', '\r',
			'0', '1', '2', '3', '4', '5', '6', '7', '8', '9',
			'-', '.', 'e', 'E', '+', 't', 'r', 'u', 'f', 'a', 'l', 's', 'n':
			lastValidIndex = i
		}
	}

	if lastValidIndex < 0 {
		return ""
	}

	result := text[:lastValidIndex+1]
	if inString {
		result += `"`
	} else {
		result = strings.TrimRight(result, ", \t\n\r")
	}
	result = completeTrailingLiteral(result)

	for i := len(openStack) - 1; i >= 0; i-- {
		if openStack[i] == '{' {
			result += "}"
		} else {
			result += "]"
		}
	}

	return result
}

// completeTrailingLiteral finishes a truncated `true`/`false`/`null` token
// at the end of s, e.g. `{"active":tr` -> `{"active":true`.
func completeTrailingLiteral(s string) string {
	i := len(s) - 1
	for i >= 0 && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i--
	}
	if i < 0 {
		return s
	}

	start := i
	for start > 0 && s[start-1] >= 'a' && s[start-1] <= 'z' {
		start--
	}
	if start == i+1 {
		return s
	}

	partial := s[start : i+1]
	switch {
	case strings.HasPrefix("true", partial) && partial != "true":
		return s[:start] + "true"
	case strings.HasPrefix("false", partial) && partial != "false":
		return s[:start] + "false"
	case strings.HasPrefix("null", partial) && partial != "null":
		return s[:start] + "null"
	default:
		return s
	}
}
