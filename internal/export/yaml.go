package export

import (
	"io"

	"github.com/iksnae/claw-dash/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter exports chat logs in YAML format
type YAMLExporter struct{}

// Export exports a chat log to YAML format
func (e *YAMLExporter) Export(log *internal.ChatLog, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()

	return enc.Encode(log)
}

// Extension returns the file extension for this format
func (e *YAMLExporter) Extension() string {
	return "yaml"
}
