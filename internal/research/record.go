package research

import (
	"strings"
	"time"
)

const recordTimeLayout = "2006-01-02 15:04:05"

// SaveRecord formats data as one appended entry of the research output file.
func SaveRecord(data string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("--- Research Output --- \n")
	sb.WriteString("Timestamp: ")
	sb.WriteString(now.Format(recordTimeLayout))
	sb.WriteString("\n\n")
	sb.WriteString(data)
	sb.WriteString("\n\n")
	return sb.String()
}

// IsLink reports whether a source should be rendered as a hyperlink.
func IsLink(source string) bool {
	return strings.HasPrefix(source, "http")
}
