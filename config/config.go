// Package config lê a configuração de boot do gateway.
//
// O arquivo (JSON ou YAML) usa as mesmas chaves do config.json histórico
// (REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, ADMIN_API_KEY) e qualquer chave pode
// ser sobrescrita por variável de ambiente com prefixo GATEWAY_
// (ex: GATEWAY_REDIS_HOST). Arquivos .env são carregados antes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPath é o caminho histórico do arquivo de configuração.
const DefaultPath = "config/config.json"

// ErrConfigNotFound é fatal no boot: sem arquivo não há segredo de admin.
var ErrConfigNotFound = errors.New("configuration file not found")

type Config struct {
	ListenAddr string
	LogLevel   string
	LogFile    string

	Redis       Redis
	AdminAPIKey string
	APIKeys     APIKeys
	Rate        Rate
	Concurrency Concurrency

	CORSAllowOrigins []string
}

type Redis struct {
	Host         string
	Port         int
	Password     string
	DialTimeout  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

func (r Redis) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type APIKeys struct {
	Driver      string
	DSN         string
	CacheSize   int
	Header      string
	AdminHeader string
}

type Rate struct {
	Window       time.Duration
	Global       int
	Trusted      int
	General      int
	TrustedCIDRs []string
	// Store é "memory" (um processo) ou "redis" (cotas compartilhadas).
	Store      string
	SweepEvery time.Duration
	// RouteRPS/RouteBurst ligam o guard de rajada por rota quando > 0.
	RouteRPS   float64
	RouteBurst int
	TrustXFF   bool
	AddHeaders bool

	StatsEnabled      bool
	StatsPrefix       string
	StatsTTL          time.Duration
	StatsTrackCallers bool
	StatsPerMinute    bool
}

type Concurrency struct {
	Max     int
	Timeout time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("ADMIN_API_KEY", "")
	v.SetDefault("BACKEND_MAX_ATTEMPTS", 3)
	v.SetDefault("BACKEND_RETRY_BACKOFF", 50*time.Millisecond)
	v.SetDefault("BACKEND_DIAL_TIMEOUT", 2*time.Second)

	v.SetDefault("APIKEY_DB_DRIVER", "sqlite")
	v.SetDefault("APIKEY_DB_DSN", "config/apikeys.db")
	v.SetDefault("APIKEY_CACHE_SIZE", 1024)
	v.SetDefault("API_KEY_HEADER", "X-API-Key")
	v.SetDefault("ADMIN_KEY_HEADER", "X-Admin-Key")

	v.SetDefault("RATE_WINDOW", 60*time.Second)
	v.SetDefault("RATE_GLOBAL_LIMIT", 1000)
	v.SetDefault("RATE_TRUSTED_LIMIT", 100)
	v.SetDefault("RATE_DEFAULT_LIMIT", 5)
	v.SetDefault("RATE_TRUSTED_CIDRS", "")
	v.SetDefault("RATE_STORE", "memory")
	v.SetDefault("RATE_SWEEP_EVERY", time.Minute)
	v.SetDefault("RATE_ROUTE_RPS", 0)
	v.SetDefault("RATE_ROUTE_BURST", 0)
	v.SetDefault("TRUST_XFF", false)
	v.SetDefault("ADD_RATELIMIT_HEADERS", true)
	v.SetDefault("RATE_STATS_ENABLED", false)
	v.SetDefault("RATE_STATS_PREFIX", "gateway:ratelimit:stats")
	v.SetDefault("RATE_STATS_TTL", 24*time.Hour)
	v.SetDefault("RATE_STATS_TRACK_CALLERS", false)
	v.SetDefault("RATE_STATS_PER_MINUTE", true)

	v.SetDefault("CONCURRENCY_MAX", 0)
	v.SetDefault("CONCURRENCY_TIMEOUT", 100*time.Millisecond)
	v.SetDefault("CORS_ALLOW_ORIGINS", "*")
}

// Load lê o arquivo em path, aplica variáveis de ambiente e valida o resultado.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("gateway")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{
		ListenAddr: v.GetString("LISTEN_ADDR"),
		LogLevel:   v.GetString("LOG_LEVEL"),
		LogFile:    v.GetString("LOG_FILE"),
		Redis: Redis{
			Host:         v.GetString("REDIS_HOST"),
			Port:         v.GetInt("REDIS_PORT"),
			Password:     v.GetString("REDIS_PASSWORD"),
			DialTimeout:  v.GetDuration("BACKEND_DIAL_TIMEOUT"),
			MaxAttempts:  v.GetInt("BACKEND_MAX_ATTEMPTS"),
			RetryBackoff: v.GetDuration("BACKEND_RETRY_BACKOFF"),
		},
		AdminAPIKey: v.GetString("ADMIN_API_KEY"),
		APIKeys: APIKeys{
			Driver:      v.GetString("APIKEY_DB_DRIVER"),
			DSN:         v.GetString("APIKEY_DB_DSN"),
			CacheSize:   v.GetInt("APIKEY_CACHE_SIZE"),
			Header:      v.GetString("API_KEY_HEADER"),
			AdminHeader: v.GetString("ADMIN_KEY_HEADER"),
		},
		Rate: Rate{
			Window:            v.GetDuration("RATE_WINDOW"),
			Global:            v.GetInt("RATE_GLOBAL_LIMIT"),
			Trusted:           v.GetInt("RATE_TRUSTED_LIMIT"),
			General:           v.GetInt("RATE_DEFAULT_LIMIT"),
			TrustedCIDRs:      list(v.GetStringSlice("RATE_TRUSTED_CIDRS")),
			Store:             strings.ToLower(v.GetString("RATE_STORE")),
			SweepEvery:        v.GetDuration("RATE_SWEEP_EVERY"),
			RouteRPS:          v.GetFloat64("RATE_ROUTE_RPS"),
			RouteBurst:        v.GetInt("RATE_ROUTE_BURST"),
			TrustXFF:          v.GetBool("TRUST_XFF"),
			AddHeaders:        v.GetBool("ADD_RATELIMIT_HEADERS"),
			StatsEnabled:      v.GetBool("RATE_STATS_ENABLED"),
			StatsPrefix:       v.GetString("RATE_STATS_PREFIX"),
			StatsTTL:          v.GetDuration("RATE_STATS_TTL"),
			StatsTrackCallers: v.GetBool("RATE_STATS_TRACK_CALLERS"),
			StatsPerMinute:    v.GetBool("RATE_STATS_PER_MINUTE"),
		},
		Concurrency: Concurrency{
			Max:     v.GetInt("CONCURRENCY_MAX"),
			Timeout: v.GetDuration("CONCURRENCY_TIMEOUT"),
		},
		CORSAllowOrigins: list(v.GetStringSlice("CORS_ALLOW_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// list aceita tanto arrays do arquivo quanto "a,b c" vindo do ambiente.
func list(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Redis.Host) == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be between 1 and 65535, got %d", c.Redis.Port))
	}
	if c.Redis.MaxAttempts <= 0 {
		errs = append(errs, errors.New("BACKEND_MAX_ATTEMPTS must be > 0"))
	}
	if strings.TrimSpace(c.AdminAPIKey) == "" {
		errs = append(errs, errors.New("ADMIN_API_KEY is required"))
	}
	switch strings.ToLower(c.APIKeys.Driver) {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("APIKEY_DB_DRIVER must be sqlite or postgres, got %q", c.APIKeys.Driver))
	}
	if c.Rate.Window < time.Second {
		errs = append(errs, errors.New("RATE_WINDOW must be >= 1s"))
	}
	if c.Rate.Global <= 0 || c.Rate.Trusted <= 0 || c.Rate.General <= 0 {
		errs = append(errs, errors.New("rate limits must be > 0"))
	}
	switch c.Rate.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("RATE_STORE must be memory or redis, got %q", c.Rate.Store))
	}
	if c.Rate.RouteRPS < 0 || c.Rate.RouteBurst < 0 {
		errs = append(errs, errors.New("RATE_ROUTE_RPS and RATE_ROUTE_BURST must be >= 0"))
	}
	if c.Concurrency.Max < 0 {
		errs = append(errs, errors.New("CONCURRENCY_MAX must be >= 0"))
	}
	return errors.Join(errs...)
}
