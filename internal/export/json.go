package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/claw-dash/internal"
)

// JSONExporter exports chat logs in JSON format (pretty-printed)
type JSONExporter struct{}

// Export exports a chat log to JSON format
func (e *JSONExporter) Export(log *internal.ChatLog, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(log)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}
