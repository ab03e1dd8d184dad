// Package locale holds the embedded translations shared by the HTTP error
// bodies and the desktop window.
package locale

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

const (
	localeDir    = "locales"
	localePrefix = "active."
	localeSuffix = ".json"
)

// Catalog is the loaded translation bundle.
type Catalog struct {
	bundle   *i18n.Bundle
	tags     []language.Tag
	fallback language.Tag
	matcher  language.Matcher
}

// Load reads every embedded active.<lang>.json file. fallback is used when a
// request names no supported language; an unknown fallback means English.
func Load(fallback string) (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(localeDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrLocalesAccess, err)
	}

	// English first: the matcher falls back to its first tag.
	tags := []language.Tag{language.English}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, localePrefix) || !strings.HasSuffix(name, localeSuffix) {
			slog.Debug(config.MsgLocaleSkip,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		langCode := strings.TrimSuffix(strings.TrimPrefix(name, localePrefix), localeSuffix)
		tag, err := language.Parse(langCode)
		if langCode == "" || err != nil {
			slog.Warn(config.MsgLocaleBadName,
				config.LogKeyComponent, config.CompI18n,
				config.LogKeyFile, name,
			)
			continue
		}

		if _, err := bundle.LoadMessageFileFS(localeFS, localeDir+"/"+name); err != nil {
			return nil, fmt.Errorf("%s %s: %w", config.ErrLocaleLoad, name, err)
		}
		slog.Debug(config.MsgLocaleLoaded,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyLang, langCode,
		)

		if tag != language.English {
			tags = append(tags, tag)
		}
	}

	c := &Catalog{
		bundle:  bundle,
		tags:    tags,
		matcher: language.NewMatcher(tags),
	}
	c.fallback = c.match(fallback, language.English)
	return c, nil
}

// Languages lists the loaded language codes, English first.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.tags))
	for i, t := range c.tags {
		out[i] = t.String()
	}
	return out
}

// match picks the best supported tag for an Accept-Language value.
func (c *Catalog) match(accept string, def language.Tag) language.Tag {
	if strings.TrimSpace(accept) == "" {
		return def
	}
	wanted, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(wanted) == 0 {
		return def
	}
	_, idx, conf := c.matcher.Match(wanted...)
	if conf == language.No {
		return def
	}
	return c.tags[idx]
}

// For returns a Translator for an Accept-Language header value, falling back
// to the catalog's default language.
func (c *Catalog) For(accept string) *Translator {
	tag := c.match(accept, c.fallback)
	return &Translator{
		Lang: tag.String(),
		loc:  i18n.NewLocalizer(c.bundle, tag.String()),
	}
}

// Translator renders messages in one language.
type Translator struct {
	Lang string
	loc  *i18n.Localizer
}

// Get translates a key. Missing keys are returned as is.
func (t *Translator) Get(key string) string {
	return t.GetWith(key, nil)
}

// GetWith translates a key whose message uses template data.
func (t *Translator) GetWith(key string, data map[string]any) string {
	if t == nil || t.loc == nil {
		return key
	}
	msg, err := t.loc.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: data})
	if err != nil {
		slog.Debug(config.MsgTransMissing,
			config.LogKeyComponent, config.CompI18n,
			config.LogKeyKey, key,
			config.LogKeyError, err,
		)
		return key
	}
	return msg
}
