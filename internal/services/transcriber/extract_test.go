package transcriber_test

import (
	"encoding/json"
	"testing"

	"scribe/internal/services/transcriber"
)

func TestExtractTranscriptShapes(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   string
	}{
		{"bare string", `"hello world"`, "hello world"},
		{"object with text key", `{"text":"hello","confidence":0.9}`, "hello"},
		{"object with transcript key", `{"transcript":"guten tag"}`, "guten tag"},
		{"object with transcription key", `{"transcription":"bonjour"}`, "bonjour"},
		{"string array joined", `["line one","line two"]`, "line one\nline two"},
		{"unknown object kept verbatim", `{"segments":[{"t":"a"}]}`, `{"segments":[{"t":"a"}]}`},
		{"number kept verbatim", `42`, "42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := transcriber.ExtractTranscript(json.RawMessage(tc.output))
			if got != tc.want {
				t.Fatalf("ExtractTranscript(%s) = %q, want %q", tc.output, got, tc.want)
			}
		})
	}
}

func TestExtractTranscriptEmpty(t *testing.T) {
	if got := transcriber.ExtractTranscript(nil); got != "" {
		t.Fatalf("expected empty transcript for nil output, got %q", got)
	}
}

func TestNormalizeLanguage(t *testing.T) {
	if got, err := transcriber.NormalizeLanguage("EN-us"); err != nil || got != "en-US" {
		t.Fatalf("NormalizeLanguage(EN-us) = %q, %v", got, err)
	}
	if got, err := transcriber.NormalizeLanguage(""); err != nil || got != "" {
		t.Fatalf("expected empty language passthrough, got %q, %v", got, err)
	}
	if _, err := transcriber.NormalizeLanguage("not a language tag at all"); err == nil {
		t.Fatal("expected error for invalid tag")
	}
}
