// Package i18n serves the bot's user-facing strings in Spanish and English.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a chat's language has no catalog.
const DefaultLanguage = "es"

//go:embed locales/*.yaml
var locales embed.FS

// Translator resolves localized strings using dot-separated keys.
type Translator interface {
	T(key string) string
	// Tf formats the template stored under key with args.
	Tf(key string, args ...any) string
	Lang() string
}

// Manager stores all available translations.
type Manager struct {
	translations map[string]map[string]string
	defaultLang  string
}

// Load reads the catalogs compiled into the binary.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(locales, "locales", defaultLang)
}

// LoadFS loads every YAML catalog found in dir of fsys.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	catalog, err := parseDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	defaultLang = normalize(defaultLang)
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}

	if _, ok := catalog[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Manager{translations: catalog, defaultLang: defaultLang}, nil
}

// Translator returns a translator for lang. Regional tags such as "es-AR"
// resolve to their base language.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	norm := normalize(lang)
	if m.translations[norm] == nil {
		if base, _, ok := strings.Cut(norm, "-"); ok && m.translations[base] != nil {
			norm = base
		} else {
			norm = m.defaultLang
		}
	}

	return translator{
		lang:         norm,
		fallback:     m.defaultLang,
		translations: m.translations,
	}
}

// Languages returns all loaded languages, sorted.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(m.translations))
}

type translator struct {
	lang         string
	fallback     string
	translations map[string]map[string]string
}

func (t translator) Lang() string { return t.lang }

// T looks key up in the chat language, then the default language, and echoes
// the key when neither has it.
func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	for _, lang := range [...]string{t.lang, t.fallback} {
		if v := t.translations[lang][key]; v != "" {
			return v
		}
	}
	return key
}

func (t translator) Tf(key string, args ...any) string {
	return fmt.Sprintf(t.T(key), args...)
}

func normalize(lang string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(lang)), "_", "-")
}

// parseDir merges every .yaml or .yml file in dir. Later files override
// earlier keys of the same language.
func parseDir(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*"))
	if err != nil {
		return nil, fmt.Errorf("i18n: list %s: %w", dir, err)
	}
	if _, err := fs.Stat(fsys, dir); err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	catalog := map[string]map[string]string{}
	found := 0
	for _, name := range files {
		if ext := strings.ToLower(path.Ext(name)); ext != ".yaml" && ext != ".yml" {
			continue
		}
		found++

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("i18n: read file %s: %w", name, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("i18n: parse file %s: %w", name, err)
		}

		for lang, tree := range doc {
			lang = normalize(lang)
			nested, ok := tree.(map[string]any)
			if lang == "" || !ok {
				continue
			}
			if catalog[lang] == nil {
				catalog[lang] = map[string]string{}
			}
			flatten("", nested, catalog[lang])
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}
	return catalog, nil
}

// flatten writes string leaves of in to out under dot-joined keys.
func flatten(prefix string, in map[string]any, out map[string]string) {
	for key, value := range in {
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		switch v := value.(type) {
		case string:
			out[key] = v
		case map[string]any:
			flatten(key, v, out)
		}
	}
}
