package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNoJSON is returned by Parse when the output contains no JSON object.
var ErrNoJSON = errors.New("no JSON object found in output")

const formatInstructions = `The output should be formatted as a JSON instance that conforms to the JSON schema below.

As an example, for the schema {"properties": {"foo": {"title": "Foo", "description": "a list of strings", "type": "array", "items": {"type": "string"}}}, "required": ["foo"]}
the object {"foo": ["bar", "baz"]} is a well-formatted instance of the schema. The object {"properties": {"foo": ["bar", "baz"]}} is not well-formatted.

Here is the output schema:
` + "```" + `
{"properties": {"topic": {"title": "Topic", "type": "string"}, "summary": {"title": "Summary", "type": "string"}, "sources": {"title": "Sources", "type": "array", "items": {"type": "string"}}, "tools_used": {"title": "Tools Used", "type": "array", "items": {"type": "string"}}}, "required": ["topic", "summary", "sources", "tools_used"]}
` + "```"

// FormatInstructions describes the Report JSON schema for the system prompt.
func FormatInstructions() string { return formatInstructions }

// Parse extracts a Report from raw model output. Markdown fences and any prose
// around the outermost JSON object are ignored. topic and summary are required.
func Parse(raw string) (Response, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return Response{}, err
	}

	var rep Report
	if err := json.Unmarshal([]byte(obj), &rep); err != nil {
		return Response{}, fmt.Errorf("decode report: %w", err)
	}
	if strings.TrimSpace(rep.Topic) == "" {
		return Response{}, errors.New("report is missing topic")
	}
	if strings.TrimSpace(rep.Summary) == "" {
		return Response{}, errors.New("report is missing summary")
	}
	rep.normalize()
	return ReportResponse(&rep), nil
}

// ParseOrRaw parses raw into a Report, falling back to the raw text when it is not
// a valid report.
func ParseOrRaw(raw string) Response {
	resp, err := Parse(raw)
	if err != nil {
		slog.Warn("research: output is not a structured report, returning raw text",
			"error", err, "output_len", len(raw))
		return TextResponse(strings.TrimSpace(raw))
	}
	return resp
}

// extractJSONObject returns the first balanced {...} span of s, skipping braces
// that appear inside JSON strings.
func extractJSONObject(s string) (string, error) {
	s = stripFences(s)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

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
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object: %w", ErrNoJSON)
}

// stripFences removes a ```json ... ``` block wrapping the object. Fences that
// only appear inside the object (e.g. code in the summary) are left alone.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	open := strings.Index(s, "```")
	brace := strings.IndexByte(s, '{')
	if open < 0 || (brace >= 0 && brace < open) {
		return s
	}
	rest := s[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
