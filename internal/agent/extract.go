// Package agent provides the uniform stage executor (AgentRunner) and the
// robust JSON extraction utility every stage relies on to parse LLM output.
package agent

import "strings"

// ExtractBalancedJSON locates the first '{' in s, then scans forward
// counting '{' and '}' with string-literal and escape-sequence awareness,
// completing the match at the first '}' that returns the depth counter to
// zero. Returns ("", false) if no balanced object exists.
//
// This is the spec's named, independently tested "robust JSON extraction"
// utility: LLMs routinely wrap their JSON in prose or markdown fences, and
// this scans past that without requiring the caller to strip it first.
func ExtractBalancedJSON(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
