package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SNIPER_BUY_AMOUNT.
const EnvPrefix = "SNIPER"

// ChangeListener receives the keys that changed on a file reload.
type ChangeListener func(partial map[string]any)

// Loader reads Settings from an optional file plus the environment and
// watches the file for edits.
type Loader struct {
	path   string
	v      *viper.Viper
	logger *logrus.Logger

	mu        sync.RWMutex
	current   Settings
	listeners []ChangeListener
}

// NewLoader builds a loader. An empty path means defaults plus environment.
func NewLoader(path string, logger *logrus.Logger) (*Loader, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, value := range ToMap(Default()) {
		v.SetDefault(key, value)
	}
	storageDefaults := make(map[string]any)
	if err := mapstructure.Decode(DefaultStorage(), &storageDefaults); err != nil {
		return nil, fmt.Errorf("flatten storage defaults: %w", err)
	}
	for key, value := range storageDefaults {
		v.SetDefault("storage."+key, value)
	}

	path = strings.TrimSpace(path)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
	}

	l := &Loader{path: path, v: v, logger: logger}
	s, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = s
	return l, nil
}

// Load is a one-shot read without watching.
func Load(path string) (Settings, error) {
	l, err := NewLoader(path, nil)
	if err != nil {
		return Settings{}, err
	}
	return l.Settings(), nil
}

// Settings returns a copy of the last successfully loaded settings.
func (l *Loader) Settings() Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.Clone()
}

// Storage reads the startup-only storage section. Keys are read one by one
// so SNIPER_STORAGE_* overrides apply to nested keys.
func (l *Loader) Storage() (StorageConfig, error) {
	c := StorageConfig{
		Backend:       l.v.GetString("storage.backend"),
		SQLitePath:    l.v.GetString("storage.sqlite_path"),
		PostgresDSN:   l.v.GetString("storage.postgres_dsn"),
		RedisAddr:     l.v.GetString("storage.redis_addr"),
		RedisPassword: l.v.GetString("storage.redis_password"),
		RedisDB:       l.v.GetInt("storage.redis_db"),
		ClickHouseDSN: l.v.GetString("storage.clickhouse_dsn"),
		KafkaBrokers:  splitList(l.v.GetStringSlice("storage.kafka_brokers")),
		KafkaTopic:    l.v.GetString("storage.kafka_topic"),
	}
	if err := c.Validate(); err != nil {
		return StorageConfig{}, fmt.Errorf("invalid storage config: %w", err)
	}
	return c, nil
}

// splitList flattens comma-separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// OnChange registers a listener for file reloads.
func (l *Loader) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Watch starts watching the settings file. No-op without a file.
func (l *Loader) Watch() {
	if l.path == "" {
		return
	}
	l.v.OnConfigChange(func(evt fsnotify.Event) {
		changed, err := l.reload()
		if err != nil {
			l.logger.WithError(err).WithField("file", evt.Name).Error("settings reload failed")
			return
		}
		if len(changed) == 0 {
			return
		}
		l.logger.WithField("keys", keys(changed)).Info("settings file changed")
		l.notify(changed)
	})
	l.v.WatchConfig()
}

func (l *Loader) reload() (map[string]any, error) {
	next, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	prev := l.current
	l.current = next
	l.mu.Unlock()

	return Diff(prev, next), nil
}

func (l *Loader) decode() (Settings, error) {
	s := Default()
	if err := l.v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func (l *Loader) notify(changed map[string]any) {
	l.mu.RLock()
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()

	for _, fn := range listeners {
		fn(changed)
	}
}

// ToMap flattens settings into their key-value form.
func ToMap(s Settings) map[string]any {
	out := make(map[string]any)
	if err := mapstructure.Decode(s, &out); err != nil {
		// Settings only holds plain fields; a failure here is a programming error.
		panic(fmt.Sprintf("flatten settings: %v", err))
	}
	return out
}

// Diff returns the keys of next whose values differ from prev.
func Diff(prev, next Settings) map[string]any {
	a, b := ToMap(prev), ToMap(next)
	changed := make(map[string]any)
	for k, v := range b {
		if !reflect.DeepEqual(a[k], v) {
			changed[k] = v
		}
	}
	return changed
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
