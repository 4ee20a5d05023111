// Package research holds the research output model shared by the agent, the gateway
// and every client: the structured Report, the string-or-report Response union, and
// the helpers that turn raw model output into one.
package research

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Report is the structured answer the agent is instructed to produce.
type Report struct {
	Topic     string   `json:"topic"`
	Summary   string   `json:"summary"`
	Sources   []string `json:"sources"`
	ToolsUsed []string `json:"tools_used"`
}

// Response is what a client renders: either free text (the model ignored the
// format instructions) or a Report. The zero value renders nothing.
type Response struct {
	Text   string
	Report *Report
}

// TextResponse wraps plain text.
func TextResponse(s string) Response { return Response{Text: s} }

// ReportResponse wraps a structured report.
func ReportResponse(r *Report) Response { return Response{Report: r} }

// IsEmpty reports whether there is nothing to render.
func (r Response) IsEmpty() bool { return r.Report == nil && r.Text == "" }

// IsStructured reports whether the response carries a Report.
func (r Response) IsStructured() bool { return r.Report != nil }

// Preview returns a short human-readable string (topic for reports, text otherwise).
func (r Response) Preview() string {
	if r.Report != nil {
		return r.Report.Topic
	}
	return r.Text
}

// MarshalJSON encodes the response as a bare JSON string or a report object.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Report != nil {
		return json.Marshal(r.Report)
	}
	if r.Text == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.Text)
}

// UnmarshalJSON accepts a JSON string, a report object, or null.
func (r *Response) UnmarshalJSON(data []byte) error {
	*r = Response{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &r.Text)
	case '{':
		var rep Report
		if err := json.Unmarshal(data, &rep); err != nil {
			return fmt.Errorf("decode report: %w", err)
		}
		rep.normalize()
		r.Report = &rep
		return nil
	default:
		return fmt.Errorf("response must be a string or an object, got %q", data[:1])
	}
}

func (rep *Report) normalize() {
	if rep.Sources == nil {
		rep.Sources = []string{}
	}
	if rep.ToolsUsed == nil {
		rep.ToolsUsed = []string{}
	}
}

// MergeToolsUsed appends tool names the model did not list itself, preserving order.
func (rep *Report) MergeToolsUsed(names []string) {
	seen := make(map[string]bool, len(rep.ToolsUsed))
	for _, n := range rep.ToolsUsed {
		seen[n] = true
	}
	for _, n := range names {
		if !seen[n] {
			rep.ToolsUsed = append(rep.ToolsUsed, n)
			seen[n] = true
		}
	}
}
