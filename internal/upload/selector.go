package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"scribe/internal/services"
)

// Strategy names a payload transmission method.
type Strategy string

const (
	// StrategyInline embeds the encoded payload in the submission body.
	StrategyInline Strategy = "inline"
	// StrategyStaged pre-uploads the payload to external storage and submits
	// a URL reference instead.
	StrategyStaged Strategy = "staged"
)

// Selector decides the transmission method for a payload and gates
// unsupported formats before any network activity. Stateless.
type Selector struct {
	threshold int64
	formats   map[string]struct{}
}

// NewSelector builds a selector from the configured threshold and the set of
// supported formats (extensions without the leading dot).
func NewSelector(threshold int64, formats []string) *Selector {
	set := make(map[string]struct{}, len(formats))
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
		if format != "" {
			set[format] = struct{}{}
		}
	}
	return &Selector{threshold: threshold, formats: set}
}

// Select returns the strategy for a payload of the given size. Payloads at or
// above the threshold are staged; below it they are sent inline.
func (s *Selector) Select(size int64) Strategy {
	if size >= s.threshold {
		return StrategyStaged
	}
	return StrategyInline
}

// Validate checks that the payload's declared name or media type belongs to
// the supported set. It runs before any network call.
func (s *Selector) Validate(name, contentType string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := s.formats[ext]; ok {
		return nil
	}

	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if idx := strings.IndexByte(mediaType, '/'); idx >= 0 {
				subtype := mediaType[idx+1:]
				if _, ok := s.formats[normalizeSubtype(subtype)]; ok {
					return nil
				}
			}
		}
	}

	detail := ext
	if detail == "" {
		detail = contentType
	}
	if detail == "" {
		detail = "unknown"
	}
	return services.Wrap(services.ErrUnsupportedFormat, "upload", "validate",
		fmt.Sprintf("format %q is not supported", detail), nil)
}

// Threshold returns the configured inline/staged boundary in bytes.
func (s *Selector) Threshold() int64 {
	return s.threshold
}

func normalizeSubtype(subtype string) string {
	switch subtype {
	case "mpeg", "mpeg3":
		return "mp3"
	case "x-wav", "wave":
		return "wav"
	case "mp4a-latm":
		return "m4a"
	default:
		return subtype
	}
}
