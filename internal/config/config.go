// Package config loads poolwatch settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for poolwatch, split per concern.
type Config struct {
	// API is the remote compute service.
	API APIConfig `mapstructure:"api"`
	// Cache selects where cached entities live.
	Cache CacheConfig `mapstructure:"cache"`
	// Watch tunes --watch mode.
	Watch WatchConfig `mapstructure:"watch"`
	// Log configures the zap logger.
	Log LogConfig `mapstructure:"log"`
}

type APIConfig struct {
	// BaseURL is the service root, e.g. https://batch.example.com/api.
	BaseURL string `mapstructure:"base_url" default:""`
	// Timeout bounds a single HTTP request.
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
	// PageSize is sent as maxresults on list requests.
	PageSize int `mapstructure:"page_size" default:"100"`
	// Strict rejects responses with unknown fields.
	Strict bool `mapstructure:"strict" default:"false"`
}

const (
	ProviderMemory    = "memory"
	ProviderRistretto = "ristretto"
	ProviderBigCache  = "bigcache"
	ProviderRedis     = "redis"
)

type CacheConfig struct {
	// Provider is one of memory, ristretto, bigcache, redis.
	Provider string `mapstructure:"provider" default:"memory"`
	// Codec encodes entities for byte providers: json, msgpack or cbor.
	Codec string `mapstructure:"codec" default:"msgpack"`
	// TTL is the entry lifetime in byte providers.
	TTL time.Duration `mapstructure:"ttl" default:"10m"`
	// MaxCost is the ristretto byte budget.
	MaxCost int64 `mapstructure:"max_cost" default:"67108864"`
	// RedisAddr is used by the redis provider and its epoch store.
	RedisAddr string `mapstructure:"redis_addr" default:"localhost:6379"`
	// EpochPrefix namespaces epoch keys shared through redis.
	EpochPrefix string `mapstructure:"epoch_prefix" default:"poolwatch"`
}

type WatchConfig struct {
	// Interval between polls.
	Interval time.Duration `mapstructure:"interval" default:"30s"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level" default:"info"`
	// Format is json or console.
	Format string `mapstructure:"format" default:"console"`
}

// IsValidProvider checks if the configured cache provider is known.
func (c CacheConfig) IsValidProvider() bool {
	switch c.Provider {
	case ProviderMemory, ProviderRistretto, ProviderBigCache, ProviderRedis:
		return true
	default:
		return false
	}
}

// Validate reports the first setting poolwatch cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.API.BaseURL == "":
		return fmt.Errorf("api.base_url is required (API_BASE_URL)")
	case c.API.PageSize <= 0:
		return fmt.Errorf("api.page_size must be positive, got %d", c.API.PageSize)
	case !c.Cache.IsValidProvider():
		return fmt.Errorf("unknown cache provider %q", c.Cache.Provider)
	case c.Cache.Provider != ProviderMemory && c.Cache.TTL <= 0:
		return fmt.Errorf("cache.ttl must be positive for provider %q", c.Cache.Provider)
	case c.Watch.Interval <= 0:
		return fmt.Errorf("watch.interval must be positive")
	}
	return nil
}

// LoadConfig loads configuration from environment variables and the .env
// file in dir, if any. Values in .env win over the environment.
func LoadConfig(dir string) (*Config, error) {
	envPath := dir + "/.env"
	if dir == "." || dir == "" {
		envPath = ".env"
	}
	// missing .env is fine outside development
	_ = godotenv.Overload(envPath)

	v := viper.New()
	bindValues(v, Config{}, "")

	// API_BASE_URL -> api.base_url
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindValues registers every mapstructure key with its default tag so
// AutomaticEnv can see it.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}
		v.SetDefault(key, field.Tag.Get("default"))
	}
}
