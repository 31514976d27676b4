package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/claw-dash/internal"
)

// JSONLExporter exports chat logs in JSONL format (one message per line)
type JSONLExporter struct{}

// Export writes each message as one JSON object per line
func (e *JSONLExporter) Export(log *internal.ChatLog, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range log.Messages {
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
