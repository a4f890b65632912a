// Package lang holds the forum's language string tables. Each locale is a
// directory of YAML files, one per namespace, embedded into the binary and
// registered with golang.org/x/text/message.
package lang

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the complete locale every other locale falls back to.
const BaseLocale = "en-US"

//go:embed locales/*/*.yaml
var embedded embed.FS

type file struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle contains every loaded locale.
type Bundle struct {
	locales map[string]map[string]string
	tags    []language.Tag
	matcher language.Matcher
}

// Load reads the embedded string tables.
func Load() (*Bundle, error) {
	return LoadFS(embedded)
}

// LoadFS reads locales/<locale>/<namespace>.yaml files from fsys.
func LoadFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locales: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no language files found")
	}
	sort.Strings(paths)

	b := &Bundle{locales: map[string]map[string]string{}}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		var f file
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		if err := b.add(p, f); err != nil {
			return nil, err
		}
	}
	if _, ok := b.locales[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is missing", BaseLocale)
	}

	// base locale first so the matcher prefers it on ties
	b.tags = []language.Tag{language.MustParse(BaseLocale)}
	for _, l := range b.Locales() {
		if l == BaseLocale {
			continue
		}
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", l, err)
		}
		b.tags = append(b.tags, tag)
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

func (b *Bundle) add(p string, f file) error {
	dirLocale := path.Base(path.Dir(p))
	fileNamespace := strings.TrimSuffix(path.Base(p), path.Ext(p))
	if strings.TrimSpace(f.Locale) != dirLocale {
		return fmt.Errorf("%s: locale %q must match directory %q", p, f.Locale, dirLocale)
	}
	if strings.TrimSpace(f.Namespace) != fileNamespace {
		return fmt.Errorf("%s: namespace %q must match file name %q", p, f.Namespace, fileNamespace)
	}
	msgs, ok := b.locales[dirLocale]
	if !ok {
		msgs = map[string]string{}
		b.locales[dirLocale] = msgs
	}
	for k, v := range f.Messages {
		key := strings.TrimSpace(k)
		if key == "" {
			return fmt.Errorf("%s: blank message key", p)
		}
		if _, dup := msgs[key]; dup {
			return fmt.Errorf("%s: duplicate key %q in %s", p, key, dirLocale)
		}
		msgs[key] = v
	}
	return nil
}

// Register installs every message into the x/text message catalog.
func (b *Bundle) Register() error {
	for _, l := range b.Locales() {
		tag, err := language.Parse(l)
		if err != nil {
			return fmt.Errorf("parse locale %q: %w", l, err)
		}
		for k, v := range b.locales[l] {
			if err := message.SetString(tag, k, v); err != nil {
				return fmt.Errorf("register %s/%s: %w", l, k, err)
			}
		}
	}
	return nil
}

// Locales returns the sorted locale identifiers.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.locales))
	for l := range b.locales {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Supports reports whether locale is an exact known locale.
func (b *Bundle) Supports(locale string) bool {
	_, ok := b.locales[locale]
	return ok
}

// Message looks key up in locale, falling back to the base locale.
func (b *Bundle) Message(locale, key string) (string, bool) {
	if msgs, ok := b.locales[locale]; ok {
		if v, ok := msgs[key]; ok {
			return v, true
		}
	}
	v, ok := b.locales[BaseLocale][key]
	return v, ok
}

// T formats the message for key; unknown keys render as the key itself and
// messages without verbs ignore args.
func (b *Bundle) T(locale, key string, args ...any) string {
	format, ok := b.Message(locale, key)
	if !ok {
		return key
	}
	if len(args) == 0 || !strings.Contains(format, "%") {
		return format
	}
	return b.Printer(locale).Sprintf(format, args...)
}

// Printer returns an x/text printer for the locale.
func (b *Bundle) Printer(locale string) *message.Printer {
	return message.NewPrinter(b.Match(locale))
}

// Match returns the closest supported tag for an arbitrary locale string.
func (b *Bundle) Match(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return b.tags[0]
	}
	_, idx, _ := b.matcher.Match(tag)
	return b.tags[idx]
}

// Normalize maps any locale string onto a supported locale identifier.
func (b *Bundle) Normalize(locale string) string {
	if b.Supports(locale) {
		return locale
	}
	if locale == "" {
		return BaseLocale
	}
	return b.Match(locale).String()
}
