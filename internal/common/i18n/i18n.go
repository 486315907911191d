// Package i18n looks up user-facing strings from embedded JSON catalogs.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var catalogFS embed.FS

// Params are substituted into {{name}} placeholders.
type Params map[string]any

type Translator struct {
	fallback string
	catalogs map[string]map[string]string
	locales  []string
	matcher  language.Matcher
}

// New loads every embedded catalog. fallback must name one of them.
func New(fallback string) (*Translator, error) {
	entries, err := catalogFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	catalogs := make(map[string]map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := catalogFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var messages map[string]string
		if err := json.Unmarshal(raw, &messages); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		catalogs[strings.TrimSuffix(e.Name(), ".json")] = messages
	}

	if _, ok := catalogs[fallback]; !ok {
		return nil, fmt.Errorf("fallback locale %q has no catalog", fallback)
	}

	// The matcher falls back to its first tag.
	locales := []string{fallback}
	for name := range catalogs {
		if name != fallback {
			locales = append(locales, name)
		}
	}
	sort.Strings(locales[1:])

	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = language.Make(l)
	}

	return &Translator{
		fallback: fallback,
		catalogs: catalogs,
		locales:  locales,
		matcher:  language.NewMatcher(tags),
	}, nil
}

// Locale maps a client locale such as "en-US" to the closest catalog name.
func (t *Translator) Locale(locale string) string {
	if locale == "" {
		return t.fallback
	}
	if _, ok := t.catalogs[locale]; ok {
		return locale
	}
	_, idx, conf := t.matcher.Match(language.Make(locale))
	if conf == language.No || idx < 0 || idx >= len(t.locales) {
		return t.fallback
	}
	return t.locales[idx]
}

// Translate formats key for locale. Missing keys fall back to the default
// catalog and then to the key itself.
func (t *Translator) Translate(key string, params Params, locale string) string {
	msg, ok := t.catalogs[t.Locale(locale)][key]
	if !ok {
		msg, ok = t.catalogs[t.fallback][key]
	}
	if !ok {
		return key
	}
	for name, value := range params {
		msg = strings.ReplaceAll(msg, "{{"+name+"}}", fmt.Sprint(value))
	}
	return msg
}

// All returns the translation of key in every catalog, keyed by catalog name.
func (t *Translator) All(key string) map[string]string {
	out := make(map[string]string, len(t.catalogs))
	for name, messages := range t.catalogs {
		if msg, ok := messages[key]; ok {
			out[name] = msg
		}
	}
	return out
}

func (t *Translator) DefaultLocale() string {
	return t.fallback
}
