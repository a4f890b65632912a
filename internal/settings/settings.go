// Package settings exposes the administrative forum settings stored in the
// settings table through a typed registry with defaults.
package settings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
)

// Kind is the value type of a setting.
type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindString
	KindCSV
	KindLanguage
)

// Definition describes one known setting.
type Definition struct {
	Key     string
	Kind    Kind
	Default string
	Min     int
	Max     int
}

// Definitions is the registry of known settings.
var Definitions = []Definition{
	{Key: "warning_settings", Kind: KindCSV, Default: "1,20,0"},
	{Key: "warning_watch", Kind: KindInt, Default: "10", Min: 0, Max: 100},
	{Key: "warning_moderate", Kind: KindInt, Default: "35", Min: 0, Max: 100},
	{Key: "warning_mute", Kind: KindInt, Default: "60", Min: 0, Max: 100},
	{Key: "max_signature_length", Kind: KindInt, Default: "300", Min: 0, Max: 65535},
	{Key: "registration_method", Kind: KindInt, Default: "0", Min: 0, Max: 3},
	{Key: "default_language", Kind: KindLanguage, Default: "en-US"},
	{Key: "paid_currency", Kind: KindString, Default: "usd"},
	{Key: "paidsubs_reminder_days", Kind: KindInt, Default: "3", Min: 0, Max: 365},
	{Key: "char_name_max", Kind: KindInt, Default: "50", Min: 1, Max: 255},
}

// Registration methods.
const (
	RegistrationImmediate = 0
	RegistrationDisabled  = 3
)

func definition(key string) (Definition, bool) {
	for _, d := range Definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Repo is the storage the settings store needs.
type Repo interface {
	AllSettings(ctx context.Context) (map[string]string, error)
	SetSettings(ctx context.Context, values map[string]string) error
}

// Store loads and saves settings.
type Store struct {
	repo Repo
}

func NewStore(repo Repo) *Store {
	return &Store{repo: repo}
}

// Load returns the current values with defaults applied.
func (s *Store) Load(ctx context.Context) (Values, error) {
	raw, err := s.repo.AllSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	v := make(Values, len(Definitions)+len(raw))
	for _, d := range Definitions {
		v[d.Key] = d.Default
	}
	for k, val := range raw {
		v[k] = val
	}
	return v, nil
}

// Change is one modified setting.
type Change struct {
	Key      string `json:"key"`
	Previous string `json:"previous"`
	New      string `json:"new"`
}

// Update validates and saves the given values, returning what changed.
// Unknown keys and malformed values are reported together.
func (s *Store) Update(ctx context.Context, values map[string]string) ([]Change, error) {
	current, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	verr := &apperr.Validation{}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	save := map[string]string{}
	var changes []Change
	for _, k := range keys {
		d, ok := definition(k)
		if !ok {
			verr.Add(k, "setting_unknown")
			continue
		}
		val, key := normalize(d, values[k])
		if key != "" {
			verr.Add(k, key)
			continue
		}
		if current[k] != val {
			save[k] = val
			changes = append(changes, Change{Key: k, Previous: current[k], New: val})
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if len(save) == 0 {
		return nil, nil
	}
	if err := s.repo.SetSettings(ctx, save); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	return changes, nil
}

// normalize returns the canonical value or an error language key.
func normalize(d Definition, raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	switch d.Kind {
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", "setting_not_int"
		}
		if n < d.Min || n > d.Max {
			return "", "setting_out_of_range"
		}
		return strconv.Itoa(n), ""
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return "", "setting_not_bool"
		}
		if b {
			return "1", ""
		}
		return "0", ""
	case KindCSV:
		parts := strings.Split(raw, ",")
		for i, p := range parts {
			p = strings.TrimSpace(p)
			if _, err := strconv.Atoi(p); err != nil {
				return "", "setting_not_int"
			}
			parts[i] = p
		}
		return strings.Join(parts, ","), ""
	case KindLanguage:
		tag, err := language.Parse(raw)
		if err != nil {
			return "", "setting_not_language"
		}
		return tag.String(), ""
	default:
		if raw == "" {
			return "", "setting_empty"
		}
		return raw, ""
	}
}

// Values is a loaded settings snapshot.
type Values map[string]string

func (v Values) String(key string) string {
	return v[key]
}

func (v Values) Int(key string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v[key]))
	return n
}

func (v Values) Bool(key string) bool {
	s := strings.TrimSpace(v[key])
	return s == "1" || strings.EqualFold(s, "true")
}

// WarningConfig is the parsed warning system configuration.
type WarningConfig struct {
	Enabled  bool
	Cap      int // points one moderator may apply per member per day; 0 = unlimited
	Decay    int // points removed per day from members not warned that day
	Watch    int
	Moderate int
	Mute     int
}

// Warning parses warning_settings ("enabled,cap,decay") and the thresholds.
func (v Values) Warning() WarningConfig {
	parts := strings.Split(v["warning_settings"], ",")
	get := func(i, def int) int {
		if i >= len(parts) {
			return def
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return def
		}
		return n
	}
	return WarningConfig{
		Enabled:  get(0, 1) == 1,
		Cap:      get(1, 20),
		Decay:    get(2, 0),
		Watch:    v.Int("warning_watch"),
		Moderate: v.Int("warning_moderate"),
		Mute:     v.Int("warning_mute"),
	}
}

// Status names the moderation tier of a warning level.
func (w WarningConfig) Status(level int) string {
	switch {
	case !w.Enabled || level <= 0:
		return "none"
	case w.Mute > 0 && level >= w.Mute:
		return "mute"
	case w.Moderate > 0 && level >= w.Moderate:
		return "moderate"
	case w.Watch > 0 && level >= w.Watch:
		return "watch"
	default:
		return "none"
	}
}
