// Package i18n selects message printers for API responses and CLI output.
package i18n

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language.
var DefaultLang = language.English

// SupportedLangs are the languages with a message catalog.
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

type contextKey struct{}

var printerKey = contextKey{}

// MatchLanguage returns the best supported language for an Accept-Language
// header value.
func MatchLanguage(acceptLang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLang)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// NewPrinter returns a message printer for the given language.
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// WithPrinter returns a new context carrying p.
func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, printerKey, p)
}

// GetPrinter returns the printer from the context, or a default one.
func GetPrinter(ctx context.Context) *message.Printer {
	p, ok := ctx.Value(printerKey).(*message.Printer)
	if !ok {
		return message.NewPrinter(DefaultLang)
	}
	return p
}

// NewCLIPrinter returns a printer for the locale named by LC_ALL or LANG.
func NewCLIPrinter() *message.Printer {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	return message.NewPrinter(localeTag(lang))
}

// localeTag maps a POSIX locale such as "de_DE.UTF-8" to a supported tag.
func localeTag(locale string) language.Tag {
	if i := strings.IndexAny(locale, ".@"); i != -1 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return DefaultLang
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return DefaultLang
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return DefaultLang
	}
	return SupportedLangs[idx]
}
