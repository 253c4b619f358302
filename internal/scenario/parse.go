package scenario

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"scenarist-ai/internal/apperr"
	"scenarist-ai/internal/domain"
)

var resultKeys = []string{
	"extractedText",
	"titleOptions",
	"hookOptions",
	"scriptMarkdown",
	"shots",
	"thumbnailIdeas",
	"hashtags",
	"checklist",
}

// ParseResult decodes the model's answer. Code fences and any prose around
// the first JSON object are ignored.
func ParseResult(text string) (domain.GenerateResult, error) {
	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return domain.GenerateResult{}, apperr.Parse(errors.New("empty answer"))
	}

	candidate, ok := firstJSONObject(cleaned)
	if !ok {
		return domain.GenerateResult{}, apperr.Parse(errors.New("no JSON object in answer"))
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		return domain.GenerateResult{}, apperr.Parse(err)
	}
	known := false
	for _, k := range resultKeys {
		if _, ok := probe[k]; ok {
			known = true
			break
		}
	}
	if !known {
		return domain.GenerateResult{}, apperr.Parse(errors.New("answer has none of the result fields"))
	}

	var result domain.GenerateResult
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return domain.GenerateResult{}, apperr.Parse(err)
	}
	return result, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	tag := s
	rest := ""
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag, rest = s[:nl], s[nl+1:]
	}
	// the answer may start on the fence line itself
	if isLanguageTag(strings.TrimSpace(tag)) {
		s = rest
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '+' {
			return false
		}
	}
	return true
}

// firstJSONObject returns the first balanced {...} substring that is valid
// JSON. Braces inside strings are skipped.
func firstJSONObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
