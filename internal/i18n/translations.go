package i18n

import (
	"embed"
	"errors"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"campusconnect/internal/domain"
)

//go:embed active.*.toml
var localeFS embed.FS

var _ domain.Messages = (*Translator)(nil)

// Translator renders user-facing text for one locale, falling back to
// English for keys the locale does not define.
type Translator struct {
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	locale    language.Tag
}

// NewTranslator loads the embedded message files. An unparsable locale
// falls back to English.
func NewTranslator(locale string) *Translator {
	tag, err := language.Parse(locale)
	if err != nil {
		log.Warn().Str("locale", locale).Msg("i18n: unknown locale, using en")
		tag = language.English
	}
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range []string{"active.en.toml", "active.fr.toml"} {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			log.Error().Err(err).Str("file", file).Msg("i18n: failed to load messages")
		}
	}

	return &Translator{
		bundle:    bundle,
		localizer: i18n.NewLocalizer(bundle, tag.String(), language.English.String()),
		locale:    tag,
	}
}

// Locale reports the tag messages are rendered in.
func (t *Translator) Locale() language.Tag {
	return t.locale
}

// T renders the message identified by key. Unknown keys render as the key
// itself.
func (t *Translator) T(key string, data map[string]any) string {
	if key == "" {
		return ""
	}
	msg, err := t.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("i18n: localize failed")
		return key
	}
	return msg
}

// ErrorMessage turns err into text for the user. Messages written by the
// server for rejected or unauthorized requests are shown as-is; every other
// kind gets a localized generic message.
func (t *Translator) ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *domain.Error
	if !errors.As(err, &e) {
		return t.T("error.unknown", nil)
	}
	switch e.Kind {
	case domain.KindServerRejected, domain.KindUnauthorized:
		if e.Message != "" {
			return e.Message
		}
	case domain.KindInvalidInput:
		return t.T("error.invalid_input", map[string]any{"Detail": e.Message})
	}
	return t.T("error."+e.Kind.String(), nil)
}
