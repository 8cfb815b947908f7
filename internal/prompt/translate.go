package prompt

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Translator turns free-form subject text into English. Both providers
// implement it over their text endpoints.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// TranslateSubject runs the optional subject translation. A failed or
// empty translation degrades to the original subject with a warning;
// translation never aborts a generation.
func TranslateSubject(ctx context.Context, tr Translator, subject string, logger zerolog.Logger) string {
	translated, err := tr.Translate(ctx, subject)
	if err != nil {
		logger.Warn().Err(err).Msg("subject translation failed, keeping original text")
		return subject
	}

	translated = strings.TrimSpace(translated)
	if translated == "" {
		logger.Warn().Msg("subject translation returned nothing, keeping original text")
		return subject
	}

	logger.Debug().Str("from", subject).Str("to", translated).Msg("translated subject")
	return translated
}
