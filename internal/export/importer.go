package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/claw-dash/internal"
	"gopkg.in/yaml.v3"
)

// maxLineSize bounds one JSONL record
const maxLineSize = 4 * 1024 * 1024

// Decode reads a chat log written by one of the exporters. json accepts
// either a full chat log or a bare message array; markdown is write-only.
func Decode(format string, r io.Reader) (*internal.ChatLog, error) {
	switch format {
	case "json":
		return decodeJSON(r)
	case "jsonl":
		return decodeJSONL(r)
	case "yaml", "yml":
		var log internal.ChatLog
		if err := yaml.NewDecoder(r).Decode(&log); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
		return &log, nil
	default:
		return nil, fmt.Errorf("unsupported import format: %s (supported: jsonl, yaml, json)", format)
	}
}

// FormatFromPath guesses a format from a file extension
func FormatFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".jsonl"):
		return "jsonl"
	case strings.HasSuffix(path, ".json"):
		return "json"
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "yaml"
	case strings.HasSuffix(path, ".md"):
		return "md"
	default:
		return ""
	}
}

func decodeJSON(r io.Reader) (*internal.ChatLog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var msgs []internal.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
		return &internal.ChatLog{Messages: msgs}, nil
	}

	var log internal.ChatLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return &log, nil
}

func decodeJSONL(r io.Reader) (*internal.ChatLog, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	log := &internal.ChatLog{}
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var msg internal.Message
		if err := json.Unmarshal(text, &msg); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		log.Messages = append(log.Messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return log, nil
}
