package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iksnae/claw-dash/internal"
)

func TestDecode_ExportedFormats(t *testing.T) {
	log := internal.CreateTestChatLog("agent:nova:main")

	for _, format := range []string{"json", "jsonl", "yaml"} {
		t.Run(format, func(t *testing.T) {
			exporter, err := NewExporter(format)
			if err != nil {
				t.Fatalf("NewExporter() error = %v", err)
			}
			var buf bytes.Buffer
			if err := exporter.Export(log, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}

			got, err := Decode(format, &buf)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(got.Messages) != len(log.Messages) {
				t.Fatalf("Decode() got %d messages, want %d", len(got.Messages), len(log.Messages))
			}
			if got.Messages[1].Content != log.Messages[1].Content {
				t.Errorf("Messages[1].Content = %q", got.Messages[1].Content)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		input    string
		wantMsgs int
		wantErr  bool
	}{
		{"bare json array", "json", `[{"role":"user","content":"hi","timestamp":1}]`, 1, false},
		{"jsonl with blank lines", "jsonl", "{\"role\":\"user\",\"content\":\"a\"}\n\n{\"role\":\"assistant\",\"content\":\"b\"}\n", 2, false},
		{"bad jsonl line", "jsonl", "{\"role\":\"user\"}\nnope\n", 0, true},
		{"bad json", "json", "{", 0, true},
		{"markdown unsupported", "md", "# Chat", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.format, strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got.Messages) != tt.wantMsgs {
				t.Errorf("Decode() got %d messages, want %d", len(got.Messages), tt.wantMsgs)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]string{
		"a.jsonl":   "jsonl",
		"a.json":    "json",
		"a.yaml":    "yaml",
		"a.yml":     "yaml",
		"chat.md":   "md",
		"chat.text": "",
	}
	for path, want := range tests {
		if got := FormatFromPath(path); got != want {
			t.Errorf("FormatFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
