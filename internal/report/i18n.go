package report

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Language represents a supported localization code.
type Language string

const (
	// LangEnglish renders the report in English.
	LangEnglish Language = "en"
	// LangTurkish renders the report in Turkish.
	LangTurkish Language = "tr"
)

// ErrUnsupportedLanguage is returned when an unknown language code is requested.
var ErrUnsupportedLanguage = errors.New("report: unsupported language")

//go:embed en.json tr.json
var localeFS embed.FS

var locales = map[Language]map[string]string{}

var (
	supported = []Language{LangEnglish, LangTurkish}
	matcher   = language.NewMatcher([]language.Tag{language.English, language.Turkish})
)

func init() {
	mustLoadLocale(LangEnglish, "en.json")
	mustLoadLocale(LangTurkish, "tr.json")
}

func mustLoadLocale(lang Language, file string) {
	data, err := localeFS.ReadFile(file)
	if err != nil {
		panic(fmt.Sprintf("report: load locale %s: %v", lang, err))
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		panic(fmt.Sprintf("report: parse locale %s: %v", lang, err))
	}
	locales[lang] = parsed
}

// Translator resolves localized strings for a specific language.
type Translator struct {
	lang    Language
	data    map[string]string
	printer *message.Printer
}

// NewTranslator builds a translator for the requested language, falling back to English.
func NewTranslator(lang Language) Translator {
	data, ok := locales[lang]
	if !ok {
		lang = LangEnglish
		data = locales[LangEnglish]
	}
	return Translator{lang: lang, data: data, printer: message.NewPrinter(language.Make(string(lang)))}
}

func (t Translator) Lang() Language {
	return t.lang
}

// T returns the localized string for the provided key.
func (t Translator) T(key string) string {
	if val, ok := t.data[key]; ok {
		return val
	}
	if t.lang != LangEnglish {
		if val, ok := locales[LangEnglish][key]; ok {
			return val
		}
	}
	return key
}

// Format returns the localized string for the key formatted with the given arguments.
func (t Translator) Format(key string, args ...any) string {
	return t.printer.Sprintf(t.T(key), args...)
}

// Number renders n with the language's digit grouping.
func (t Translator) Number(n int64) string {
	return t.printer.Sprintf("%d", n)
}

func (t Translator) Severity(sev string) string {
	return t.T("severity." + strings.ToLower(sev))
}

func (t Translator) Pass(pass bool) string {
	if pass {
		return t.T("pass")
	}
	return t.T("fail")
}

// ParseLanguage converts a flag value into a supported Language. Regional
// variants match their base language.
func ParseLanguage(lang string) (Language, error) {
	s := strings.ToLower(strings.TrimSpace(lang))
	switch s {
	case "", "english":
		return LangEnglish, nil
	case "turkish", "türkçe", "turkce":
		return LangTurkish, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	_, idx, conf := matcher.Match(tag)
	if conf < language.High {
		return LangEnglish, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return supported[idx], nil
}

// NegotiateLanguage picks the best supported language for an HTTP
// Accept-Language value, defaulting to English.
func NegotiateLanguage(accept string) Language {
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return LangEnglish
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return LangEnglish
	}
	return supported[idx]
}
