package redact_test

import (
	"testing"

	"github.com/sierra-tahoe/smsops/common/redact"
)

func TestString(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		sensitive []string
		want      string
	}{
		{
			name:      "single value",
			input:     "sending with key KEYabc123",
			sensitive: []string{"KEYabc123"},
			want:      "sending with key [REDACTED]",
		},
		{
			name:      "multiple values",
			input:     "sid=AC99 token=tok42secret",
			sensitive: []string{"AC99", "tok42secret"},
			want:      "sid=[REDACTED] token=[REDACTED]",
		},
		{
			name:      "short values skipped",
			input:     "code ab1 here",
			sensitive: []string{"ab1"},
			want:      "code ab1 here",
		},
		{
			name:      "no sensitive values",
			input:     "plain text",
			sensitive: nil,
			want:      "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redact.String(tt.input, tt.sensitive...)
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"+14155551234", "***1234"},
		{"14155551234", "***1234"},
		{"(415) 555-1234", "***1234"},
		{"1234", "****"},
		{"", "****"},
	}

	for _, tt := range tests {
		if got := redact.Phone(tt.input); got != tt.want {
			t.Errorf("Phone(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMap(t *testing.T) {
	in := map[string]any{
		"api_key":  "KEYabc",
		"from":     "+14155551234",
		"attempts": 3,
	}
	out := redact.Map(in)

	if out["api_key"] != "[REDACTED]" {
		t.Errorf("expected api_key redacted, got %v", out["api_key"])
	}
	if out["from"] != "+14155551234" {
		t.Errorf("expected from preserved, got %v", out["from"])
	}
	if out["attempts"] != 3 {
		t.Errorf("expected attempts preserved, got %v", out["attempts"])
	}
}
