package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr      = ":8000"
	DefaultGenerateURL     = "http://127.0.0.1:11434/api/generate"
	DefaultRequestTimeout  = 300 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// GatewayConfig holds configuration for the gateway.
type GatewayConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	GenerateURL     string        `yaml:"generate_url"`
	RequestTimeout  time.Duration `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"-"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	LogDir          string        `yaml:"log_dir"`
	ConfigFile      string        `yaml:"-"`
	EnvFile         string        `yaml:"-"`
}

// Load builds the configuration from, in increasing precedence, a .env file,
// the environment, the YAML config file and the flags explicitly set in args.
// Flags are registered on fs so callers may add their own beforehand.
func Load(fs *flag.FlagSet, args []string) (GatewayConfig, error) {
	var c GatewayConfig
	c.EnvFile = GetEnv("ENV_FILE", ".env")
	if c.EnvFile != "" {
		if err := godotenv.Load(c.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return c, fmt.Errorf("load env file %s: %w", c.EnvFile, err)
		}
	}
	c.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return c, err
	}

	explicit := map[string]string{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })

	if c.ConfigFile != "" {
		if err := c.LoadFile(c.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return c, fmt.Errorf("load config %s: %w", c.ConfigFile, err)
		}
		for name, v := range explicit {
			if err := fs.Set(name, v); err != nil {
				return c, fmt.Errorf("flag -%s: %w", name, err)
			}
		}
	}
	return c, c.Validate()
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so the caller can parse them.
func (c *GatewayConfig) BindFlags(fs *flag.FlagSet) {
	c.ConfigFile = GetEnv("CONFIG_FILE", DefaultConfigPath())
	c.ListenAddr = GetEnv("LISTEN_ADDR", DefaultListenAddr)
	if p := GetEnv("PORT", ""); p != "" && os.Getenv("LISTEN_ADDR") == "" {
		c.ListenAddr = ":" + strings.TrimPrefix(p, ":")
	}
	c.GenerateURL = GetEnv("GENERATE_URL", GetEnv("OLLAMA_URL", DefaultGenerateURL))
	c.RequestTimeout = DefaultRequestTimeout
	if d, err := parseSeconds(GetEnv("REQUEST_TIMEOUT", "")); err == nil {
		c.RequestTimeout = d
	}
	c.ShutdownTimeout = DefaultShutdownTimeout
	if d, err := parseSeconds(GetEnv("SHUTDOWN_TIMEOUT", "")); err == nil {
		c.ShutdownTimeout = d
	}
	mp := GetEnv("METRICS_PORT", GetEnv("METRICS_ADDR", ""))
	if mp != "" && !strings.Contains(mp, ":") {
		mp = ":" + mp
	}
	c.MetricsAddr = mp
	c.AllowedOrigins = splitList(GetEnv("ALLOWED_ORIGINS", ""))
	c.LogLevel = GetEnv("LOG_LEVEL", "info")
	c.LogFormat = GetEnv("LOG_FORMAT", "console")
	c.LogDir = GetEnv("LOG_DIR", "")

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "gateway config file path")
	fs.StringVar(&c.ListenAddr, "listen-addr", c.ListenAddr, "HTTP listen address (e.g. :8000)")
	fs.StringVar(&c.GenerateURL, "generate-url", c.GenerateURL, "inference service generate endpoint (e.g. http://127.0.0.1:11434/api/generate)")
	fs.Var((*secondsValue)(&c.RequestTimeout), "request-timeout", "downstream request timeout in seconds or as a duration (e.g. 300 or 5m)")
	fs.Var((*secondsValue)(&c.ShutdownTimeout), "shutdown-timeout", "time to wait for in-flight requests on shutdown")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "dedicated Prometheus listen address; served on the main listener when empty")
	fs.Var((*listValue)(&c.AllowedOrigins), "allowed-origins", "comma separated CORS origins; CORS disabled when empty")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log output format (console, json)")
	fs.StringVar(&c.LogDir, "log-dir", c.LogDir, "directory for rotated log files; disabled when empty")
}

// LoadFile populates the config from a YAML file. Fields already set remain unless
// overwritten by corresponding entries in the file.
func (c *GatewayConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw := struct {
		GatewayConfig   `yaml:",inline"`
		RequestTimeout  string `yaml:"request_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	}{GatewayConfig: *c}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	next := raw.GatewayConfig
	if raw.RequestTimeout != "" {
		if next.RequestTimeout, err = parseSeconds(raw.RequestTimeout); err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
	}
	if raw.ShutdownTimeout != "" {
		if next.ShutdownTimeout, err = parseSeconds(raw.ShutdownTimeout); err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
	}
	*c = next
	return nil
}

// Validate reports configuration values the gateway cannot run with.
func (c GatewayConfig) Validate() error {
	u, err := url.Parse(c.GenerateURL)
	if err != nil {
		return fmt.Errorf("generate url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("generate url %q: must be an absolute http(s) URL", c.GenerateURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must not be negative, got %s", c.ShutdownTimeout)
	}
	return nil
}

// parseSeconds accepts a bare number of seconds ("300", "2.5") or a Go duration ("5m").
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("empty duration")
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type secondsValue time.Duration

func (s *secondsValue) String() string { return time.Duration(*s).String() }

func (s *secondsValue) Set(v string) error {
	d, err := parseSeconds(v)
	if err != nil {
		return err
	}
	*s = secondsValue(d)
	return nil
}

type listValue []string

func (l *listValue) String() string { return strings.Join(*l, ",") }

func (l *listValue) Set(v string) error {
	*l = splitList(v)
	return nil
}
