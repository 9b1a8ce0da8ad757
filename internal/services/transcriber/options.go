package transcriber

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage canonicalizes a BCP-47 language tag ("en", "pt-BR").
// Empty input means provider auto-detect and passes through unchanged.
func NormalizeLanguage(lang string) (string, error) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "", nil
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", lang, err)
	}
	return tag.String(), nil
}
