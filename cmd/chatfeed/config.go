package main

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatfeed/pkg/feed"
	"github.com/go-go-golems/chatfeed/pkg/feedstream"
)

type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	// MaxMessagesPerFeed bounds the memory driver, 0 means default.
	MaxMessagesPerFeed int `yaml:"max_messages_per_feed"`
}

type FeedConfig struct {
	PlaceholderText string `yaml:"placeholder_text"`
	// PlaceholderThresholdMs is the buffering duration before the
	// placeholder appears. 0 keeps the default, negative disables it.
	PlaceholderThresholdMs int    `yaml:"placeholder_threshold_ms"`
	PollIntervalMs         int    `yaml:"poll_interval_ms"`
	CallbackUser           string `yaml:"callback_user"`
	ErrorPolicy            string `yaml:"error_policy"`
}

type ResponderConfig struct {
	// Kind names a registered responder, e.g. "echo" or "js".
	Kind       string `yaml:"kind"`
	Prefix     string `yaml:"prefix"`
	ScriptFile string `yaml:"script_file"`
}

type EvictionConfig struct {
	IdleSeconds     int `yaml:"idle_seconds"`
	IntervalSeconds int `yaml:"interval_seconds"`
}

type Config struct {
	Addr                 string                   `yaml:"addr"`
	Redis                feedstream.RedisSettings `yaml:"redis"`
	Store                StoreConfig              `yaml:"store"`
	Feed                 FeedConfig               `yaml:"feed"`
	Responder            ResponderConfig          `yaml:"responder"`
	Eviction             EvictionConfig           `yaml:"eviction"`
	ReplayLimit          int                      `yaml:"replay_limit"`
	WSIdleTimeoutSeconds int                      `yaml:"ws_idle_timeout_seconds"`
}

func DefaultConfig() Config {
	return Config{
		Addr:  ":8080",
		Store: StoreConfig{Driver: "memory"},
		Responder: ResponderConfig{
			Kind: "echo",
		},
		Eviction: EvictionConfig{
			IdleSeconds:     1800,
			IntervalSeconds: 60,
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %q", path)
	}
	if err := yaml.Unmarshal(blob, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store: sqlite driver requires path")
		}
	default:
		return errors.Errorf("store: unknown driver %q", c.Store.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.Feed.ErrorPolicy)) {
	case "", "raise", "summary", "verbose", "ignore":
	default:
		return errors.Errorf("feed: unknown error policy %q", c.Feed.ErrorPolicy)
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis: enabled but addr is empty")
	}
	return nil
}

// FeedOptions translates the feed tuning section into feed options.
func (c *Config) FeedOptions() []feed.Option {
	var opts []feed.Option
	if c.Feed.PlaceholderText != "" {
		opts = append(opts, feed.WithPlaceholderText(c.Feed.PlaceholderText))
	}
	if c.Feed.PlaceholderThresholdMs > 0 {
		opts = append(opts, feed.WithPlaceholderThreshold(time.Duration(c.Feed.PlaceholderThresholdMs)*time.Millisecond))
	} else if c.Feed.PlaceholderThresholdMs < 0 {
		opts = append(opts, feed.WithPlaceholderThreshold(0))
	}
	if c.Feed.PollIntervalMs > 0 {
		opts = append(opts, feed.WithPollInterval(time.Duration(c.Feed.PollIntervalMs)*time.Millisecond))
	}
	if c.Feed.CallbackUser != "" {
		opts = append(opts, feed.WithCallbackUser(c.Feed.CallbackUser))
	}
	if p := strings.ToLower(strings.TrimSpace(c.Feed.ErrorPolicy)); p != "" {
		opts = append(opts, feed.WithErrorPolicy(feed.ErrorPolicy(p)))
	}
	return opts
}

// ResponderParams translates the responder section into factory params.
func (c *Config) ResponderParams() map[string]any {
	params := map[string]any{}
	if c.Responder.Prefix != "" {
		params["prefix"] = c.Responder.Prefix
	}
	if c.Responder.ScriptFile != "" {
		params["script_file"] = c.Responder.ScriptFile
	}
	return params
}
