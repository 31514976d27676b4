package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/claw-dash/internal"
)

// MarkdownExporter exports chat logs in Markdown format
type MarkdownExporter struct{}

// Export exports a chat log to Markdown format
func (e *MarkdownExporter) Export(log *internal.ChatLog, w io.Writer) error {
	// Header
	_, _ = fmt.Fprintf(w, "# Chat %s\n\n", log.SessionKey)

	if log.AgentID != "" {
		_, _ = fmt.Fprintf(w, "**Agent:** %s  \n", log.AgentID)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(log.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range log.Messages {
		timestamp := ""
		if msg.Timestamp > 0 {
			timestamp = fmt.Sprintf(" (%s)", time.UnixMilli(msg.Timestamp).UTC().Format(time.RFC3339))
		}

		speaker := msg.Role
		if msg.AgentID != "" && msg.Role == "assistant" {
			speaker = fmt.Sprintf("%s (%s)", msg.Role, msg.AgentID)
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", speaker, timestamp, escapeMarkdown(msg.Content))

		if i < len(log.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes emphasis markers outside fenced code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
