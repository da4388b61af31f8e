package llm

import (
	"encoding/json"
	"strings"
)

// ExtractObject returns the first well-formed JSON object embedded in content,
// or "" if there is none. Models often wrap the object in prose or a markdown
// fence; anything outside the braces is ignored.
func ExtractObject(content string) string {
	for start := strings.IndexByte(content, '{'); start >= 0; {
		if end := matchingBrace(content, start); end > 0 {
			candidate := content[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate
			}
		}

		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ""
}

// matchingBrace returns the index of the brace closing the one at start,
// skipping braces inside string literals. It returns -1 if unbalanced.
func matchingBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
