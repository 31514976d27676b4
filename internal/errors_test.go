package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestStorageError(t *testing.T) {
	originalErr := errors.New("disk full")
	err := &StorageError{
		Key: "chat-agent:main:main",
		Op:  "set",
		Err: originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "storage error") {
		t.Errorf("StorageError.Error() should contain 'storage error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "chat-agent:main:main") {
		t.Errorf("StorageError.Error() should contain key, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("StorageError.Unwrap() should return original error")
	}
}

func TestGatewayUnavailableError(t *testing.T) {
	err := &GatewayUnavailableError{URL: "ws://127.0.0.1:18789"}
	if !strings.Contains(err.Error(), "ws://127.0.0.1:18789") {
		t.Errorf("GatewayUnavailableError.Error() should contain URL, got: %q", err.Error())
	}

	wrapped := fmt.Errorf("refresh: %w", &GatewayUnavailableError{URL: "x", Err: context.DeadlineExceeded})
	if !IsGatewayUnavailable(wrapped) {
		t.Error("IsGatewayUnavailable() should see through wrapping")
	}
	if !errors.Is(wrapped, context.DeadlineExceeded) {
		t.Error("GatewayUnavailableError.Unwrap() should return cause")
	}
	if IsGatewayUnavailable(errors.New("other")) {
		t.Error("IsGatewayUnavailable() matched an unrelated error")
	}
}

func TestGatewayUnavailableError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *GatewayUnavailableError
		want string
	}{
		{"url only", &GatewayUnavailableError{URL: "ws://gw"}, "gateway unavailable [ws://gw]"},
		{"url and cause", &GatewayUnavailableError{URL: "ws://gw", Err: ErrNotConnected}, "gateway unavailable [ws://gw]: not connected"},
		{"cause only", &GatewayUnavailableError{Err: ErrNotConnected}, "gateway unavailable: not connected"},
		{"bare", &GatewayUnavailableError{}, "gateway unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestError(t *testing.T) {
	tests := []struct {
		name string
		err  *RequestError
		want []string
	}{
		{
			name: "with code",
			err:  &RequestError{Method: "sessions.list", Code: "UNKNOWN_METHOD", Message: "no such method"},
			want: []string{"sessions.list", "UNKNOWN_METHOD", "no such method"},
		},
		{
			name: "without code",
			err:  &RequestError{Method: "skills.install", Message: "timeout"},
			want: []string{"skills.install", "timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("RequestError.Error() = %q, should contain %q", msg, w)
				}
			}
		})
	}
}

func TestMalformedResponseError(t *testing.T) {
	cause := errors.New("unexpected token")
	err := &MalformedResponseError{Method: "sessions.list", Reason: "payload is not an object", Err: cause}
	if !strings.Contains(err.Error(), "malformed response") {
		t.Errorf("MalformedResponseError.Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("MalformedResponseError.Unwrap() should return original error")
	}
}

func TestExportError(t *testing.T) {
	originalErr := errors.New("write failed")
	err := &ExportError{
		Format: "jsonl",
		Path:   "/output/file.jsonl",
		Err:    originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "export error") {
		t.Errorf("ExportError.Error() should contain 'export error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "jsonl") {
		t.Errorf("ExportError.Error() should contain format, got: %q", errorMsg)
	}
	if !errors.Is(err, originalErr) {
		t.Error("ExportError.Unwrap() should return original error")
	}
}
