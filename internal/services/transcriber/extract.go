package transcriber

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ExtractTranscript normalizes the provider's result payload to plain text.
// Known shapes: a bare string, an object with a text-like field, or an array
// of strings. Unrecognized shapes are serialized and surfaced rather than
// silently discarded.
func ExtractTranscript(output json.RawMessage) string {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" || trimmed == "null" {
		return ""
	}

	var text string
	if err := json.Unmarshal(output, &text); err == nil {
		return text
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(output, &object); err == nil {
		for _, key := range []string{"text", "transcript", "transcription"} {
			raw, ok := object[key]
			if !ok {
				continue
			}
			var value string
			if err := json.Unmarshal(raw, &value); err == nil {
				return value
			}
		}
		return compact(output)
	}

	var lines []string
	if err := json.Unmarshal(output, &lines); err == nil {
		return strings.Join(lines, "\n")
	}

	return compact(output)
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
