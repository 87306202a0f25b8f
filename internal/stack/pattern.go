package stack

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var closingDelimiters = map[rune]rune{'(': ')', '[': ']', '{': '}', '<': '>'}

// CompilePathPattern compiles a submit queue path pattern. Patterns written
// for arcanist carry PCRE delimiters and trailing flags ("/^src\//i"); those
// are stripped and the flags mapped onto Go syntax. Undelimited patterns are
// compiled as they are.
func CompilePathPattern(pattern string) (*regexp.Regexp, error) {
	body, flags, ok := splitDelimited(pattern)
	if !ok {
		return regexp.Compile(pattern)
	}
	var goFlags strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'U':
			if !strings.ContainsRune(goFlags.String(), f) {
				goFlags.WriteRune(f)
			}
		case 'u', 'D':
			// always UTF-8; $ already matches only at the end without m
		default:
			return nil, fmt.Errorf("unsupported pattern flag %q", f)
		}
	}
	if goFlags.Len() > 0 {
		body = "(?" + goFlags.String() + ")" + body
	}
	return regexp.Compile(body)
}

// splitDelimited returns the body and flags of a delimited pattern
func splitDelimited(pattern string) (string, string, bool) {
	if pattern == "" {
		return "", "", false
	}
	open := []rune(pattern)[0]
	if open == '\\' || unicode.IsLetter(open) || unicode.IsDigit(open) || unicode.IsSpace(open) {
		return "", "", false
	}
	closing := open
	if c, ok := closingDelimiters[open]; ok {
		closing = c
	}
	start := len(string(open))
	end := strings.LastIndex(pattern[start:], string(closing))
	if end < 0 {
		return "", "", false
	}
	end += start
	flags := pattern[end+len(string(closing)):]
	for _, f := range flags {
		if !unicode.IsLetter(f) {
			return "", "", false
		}
	}
	return pattern[start:end], flags, true
}
