package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/redwoodjs/sdk-sub000/core/config"
)

// ServerConfig holds configuration for the rtsync coordinator.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	WSPath          string        `yaml:"ws_path"`
	DefaultGroup    string        `yaml:"default_group"`
	RenderURL       string        `yaml:"render_url"`
	RedisAddr       string        `yaml:"redis_addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PushConcurrency int           `yaml:"push_concurrency"`
	CallRate        float64       `yaml:"call_rate"`
	CallBurst       int           `yaml:"call_burst"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	APIKey          string        `yaml:"api_key"`
	LogLevel        string        `yaml:"log_level"`
	ConfigFile      string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *ServerConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = fmt.Sprintf(":%d", c.Port)
	}
	if c.WSPath == "" {
		c.WSPath = "/__realtime"
	}
	if c.DefaultGroup == "" {
		c.DefaultGroup = "default"
	}
	if c.RenderURL == "" {
		c.RenderURL = "http://127.0.0.1:3000"
	}
	if c.PushConcurrency == 0 {
		c.PushConcurrency = 16
	}
	if c.CallBurst == 0 {
		c.CallBurst = 10
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ConfigFile == "" {
		c.ConfigFile = commoncfg.DefaultConfigPath("server.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *ServerConfig) ApplyEnv() {
	if v := commoncfg.GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := commoncfg.GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := commoncfg.GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := commoncfg.GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = metricsAddr(v)
	}
	if v := commoncfg.GetEnv("WS_PATH", ""); v != "" {
		c.WSPath = v
	}
	if v := commoncfg.GetEnv("DEFAULT_GROUP", ""); v != "" {
		c.DefaultGroup = v
	}
	if v := commoncfg.GetEnv("RENDER_URL", ""); v != "" {
		c.RenderURL = v
	}
	if v := commoncfg.GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := commoncfg.GetEnv("REQUEST_TIMEOUT", ""); v != "" {
		if d, err := parseSeconds(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := commoncfg.GetEnv("PUSH_CONCURRENCY", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PushConcurrency = n
		}
	}
	if v := commoncfg.GetEnv("CALL_RATE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.CallRate = f
		}
	}
	if v := commoncfg.GetEnv("CALL_BURST", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CallBurst = n
		}
	}
	if v := commoncfg.GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := commoncfg.GetEnv("WRITE_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WriteTimeout = d
		}
	}
	if v := commoncfg.GetEnv("PING_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PingInterval = d
		}
	}
	if v := commoncfg.GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := commoncfg.GetEnv("API_KEY", ""); v != "" {
		c.APIKey = v
	}
}

// BindFlagsFromCurrent binds command line flags on fs using the current
// config values as defaults.
func (c *ServerConfig) BindFlagsFromCurrent(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for peers and the state API")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = metricsAddr(v)
		return nil
	})
	fs.StringVar(&c.WSPath, "ws-path", c.WSPath, "path peers connect to")
	fs.StringVar(&c.DefaultGroup, "default-group", c.DefaultGroup, "group key used when a peer does not send one")
	fs.StringVar(&c.RenderURL, "render-url", c.RenderURL, "base URL of the render application")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for connection records; empty keeps them in memory")
	fs.Func("request-timeout", "render request timeout in seconds (0 disables)", func(v string) error {
		d, err := parseSeconds(v)
		if err != nil {
			return err
		}
		c.RequestTimeout = d
		return nil
	})
	fs.IntVar(&c.PushConcurrency, "push-concurrency", c.PushConcurrency, "maximum concurrent pushes per call")
	fs.Float64Var(&c.CallRate, "call-rate", c.CallRate, "calls per second allowed per connection (0 disables)")
	fs.IntVar(&c.CallBurst, "call-burst", c.CallBurst, "burst size for --call-rate")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight calls on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "time allowed for one write to a peer before it is dropped")
	fs.DurationVar(&c.PingInterval, "ping-interval", c.PingInterval, "interval between liveness pings; a peer that misses a pong is dropped")
	fs.StringVar(&c.APIKey, "api-key", c.APIKey, "bearer token required for /api; leave empty to disable auth")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins for the state API", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
}

// LoadFile populates the config from a YAML file.
func (c *ServerConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Validate reports settings the coordinator cannot start with.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("ws path %q must start with /", c.WSPath)
	}
	if c.DefaultGroup == "" {
		return fmt.Errorf("default group must not be empty")
	}
	if c.PushConcurrency <= 0 {
		return fmt.Errorf("push concurrency must be positive")
	}
	if c.CallRate < 0 {
		return fmt.Errorf("call rate must not be negative")
	}
	if c.WriteTimeout <= 0 || c.PingInterval <= 0 {
		return fmt.Errorf("write timeout and ping interval must be positive")
	}
	return nil
}

func metricsAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func parseSeconds(v string) (time.Duration, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
