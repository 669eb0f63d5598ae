package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Oracle responses routinely violate "JSON only" instructions: code fences,
// leading prose, single quotes, trailing commas. The helpers here parse
// leniently so one sloppy response does not fail a whole extraction batch.

var (
	fenceOpenRe   = regexp.MustCompile("```json\\s*")
	fenceRe       = regexp.MustCompile("```\\s*")
	headingRe     = regexp.MustCompile(`(?m)^#+\s*`)
	listMarkerRe  = regexp.MustCompile(`(?m)^[\*\-\+]\s*`)
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// CleanContent strips code-fence markers, markdown headings and list markers
// from an oracle response, leaving the JSON payload (hopefully) intact.
func CleanContent(content string) string {
	content = fenceOpenRe.ReplaceAllString(content, "")
	content = fenceRe.ReplaceAllString(content, "")
	content = headingRe.ReplaceAllString(content, "")
	content = listMarkerRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// ExtractJSONObject returns the first balanced top-level JSON object in
// text, or the cleaned text unchanged when no complete object is found
// (letting the caller's parser produce the error).
func ExtractJSONObject(text string) string {
	return extractBalanced(CleanContent(text), '{', '}')
}

// ExtractJSONArray returns the first balanced top-level JSON array in text,
// or the cleaned text unchanged when no complete array is found.
func ExtractJSONArray(text string) string {
	return extractBalanced(CleanContent(text), '[', ']')
}

// extractBalanced scans for the first opener..closer span balanced outside
// of string literals, honoring escapes.
func extractBalanced(text string, opener, closer byte) string {
	start := strings.IndexByte(text, opener)
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			switch char {
			case opener:
				depth++
			case closer:
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return text
}

// ParseObject parses an oracle response expected to carry one JSON object
// into v. It tries the cleaned text directly, then balanced-object
// extraction, then common repairs (single quotes, trailing commas).
func ParseObject(content string, v interface{}) error {
	cleaned := CleanContent(content)
	if json.Unmarshal([]byte(cleaned), v) == nil {
		return nil
	}

	extracted := ExtractJSONObject(content)
	if json.Unmarshal([]byte(extracted), v) == nil {
		return nil
	}

	if json.Unmarshal([]byte(repairJSON(extracted)), v) == nil {
		return nil
	}
	return fmt.Errorf("no parseable JSON object in response (first 200 bytes: %.200s)", content)
}

// ParseArray parses an oracle response expected to carry one JSON array
// into v, with the same lenient strategy as ParseObject.
func ParseArray(content string, v interface{}) error {
	cleaned := CleanContent(content)
	if json.Unmarshal([]byte(cleaned), v) == nil {
		return nil
	}

	extracted := ExtractJSONArray(content)
	if json.Unmarshal([]byte(extracted), v) == nil {
		return nil
	}

	if json.Unmarshal([]byte(repairJSON(extracted)), v) == nil {
		return nil
	}
	return fmt.Errorf("no parseable JSON array in response (first 200 bytes: %.200s)", content)
}

// repairJSON applies the two fixes that cover most malformed oracle output:
// single-quoted strings and trailing commas before a closing bracket.
func repairJSON(text string) string {
	fixed := strings.ReplaceAll(text, "'", `"`)
	return trailingComma.ReplaceAllString(fixed, "$1")
}
