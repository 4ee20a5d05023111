// Package render formats research responses for the terminal.
package render

import (
	"log/slog"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nextlevelbuilder/researcher/internal/research"
)

const defaultWidth = 80

// Options controls terminal rendering.
type Options struct {
	Width      int    // word wrap; 0 means 80
	Style      string // glamour style name; "" picks one from the terminal background
	Plain      bool   // no ANSI styling at all (pipes, --no-color)
	Hyperlinks bool   // wrap http sources in OSC-8 links
}

var (
	topicStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3")).Underline(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	MutedStyle   = lipgloss.NewStyle().Faint(true)
	sourceIndent = "  "
)

// Text renders resp. A text response becomes a wrapped paragraph; a report
// renders its topic, its summary as Markdown and a "Sources:" block. An empty
// response renders "".
func Text(resp research.Response, opts Options) string {
	if resp.IsEmpty() {
		return ""
	}
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if !resp.IsStructured() {
		return paragraph(stripControl(resp.Text), opts) + "\n"
	}

	rep := resp.Report
	var sb strings.Builder
	sb.WriteString(heading(stripControl(rep.Topic), opts))
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimRight(markdown(stripControl(rep.Summary), opts), "\n"))
	sb.WriteString("\n")

	if len(rep.Sources) > 0 {
		sb.WriteString("\n")
		sb.WriteString(label("Sources:", opts))
		sb.WriteString("\n")
		for _, src := range rep.Sources {
			sb.WriteString(sourceIndent)
			sb.WriteString(Source(src, opts))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Source renders one source line. Only sources starting with "http" are links.
func Source(src string, opts Options) string {
	src = stripControl(src)
	if !research.IsLink(src) {
		return src
	}
	text := src
	if !opts.Plain {
		text = sourceStyle.Render(src)
	}
	if opts.Hyperlinks {
		return hyperlink(src, text)
	}
	return text
}

// stripControl drops C0 and C1 control characters other than newline and
// tab. Reports carry model and web text, and an ESC in them would reach the
// terminal as a control sequence.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r < 0x20, r == 0x7f, r >= 0x80 && r <= 0x9f:
			return -1
		}
		return r
	}, s)
}

func hyperlink(url, text string) string {
	return "\x1b]8;;" + url + "\x1b\\" + text + "\x1b]8;;\x1b\\"
}

func heading(topic string, opts Options) string {
	if opts.Plain {
		return topic
	}
	return topicStyle.Render(topic)
}

func label(s string, opts Options) string {
	if opts.Plain {
		return s
	}
	return labelStyle.Render(s)
}

func paragraph(s string, opts Options) string {
	if opts.Plain {
		return s
	}
	return lipgloss.NewStyle().Width(opts.Width).Render(s)
}

// markdown renders the summary with glamour, returning the raw text when the
// renderer fails or styling is off.
func markdown(md string, opts Options) string {
	if opts.Plain {
		return md
	}
	r, err := newRenderer(opts)
	if err != nil {
		slog.Debug("render: markdown renderer unavailable", "error", err)
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		slog.Debug("render: markdown failed", "error", err)
		return md
	}
	return strings.Trim(out, "\n")
}

func newRenderer(opts Options) (*glamour.TermRenderer, error) {
	style := glamour.WithAutoStyle()
	if opts.Style != "" {
		style = glamour.WithStandardStyle(opts.Style)
	}
	return glamour.NewTermRenderer(style, glamour.WithWordWrap(opts.Width))
}
