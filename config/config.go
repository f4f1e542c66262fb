// Package config は rso-bots の設定を読み込みます。
//
// 設定ファイル（YAML または TOML）、.env、環境変数の順に適用されます。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rso-iota/rso-bots/bot/application"
	"github.com/rso-iota/rso-bots/utils"
)

type Config struct {
	Game      GameConfig      `yaml:"game" toml:"game"`
	Bots      BotsConfig      `yaml:"bots" toml:"bots"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
}

type GameConfig struct {
	ServerURL   string `yaml:"server_url" toml:"server_url"`
	GameID      string `yaml:"game_id" toml:"game_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
}

type BotsConfig struct {
	Initial    int    `yaml:"initial" toml:"initial"`
	NamePrefix string `yaml:"name_prefix" toml:"name_prefix"`
	Policy     string `yaml:"policy" toml:"policy"`

	TickInterval   time.Duration `yaml:"-" toml:"-"`
	ConnectTimeout time.Duration `yaml:"-" toml:"-"`
	StopTimeout    time.Duration `yaml:"-" toml:"-"`

	TickIntervalRaw   string `yaml:"tick_interval" toml:"tick_interval"`
	ConnectTimeoutRaw string `yaml:"connect_timeout" toml:"connect_timeout"`
	StopTimeoutRaw    string `yaml:"stop_timeout" toml:"stop_timeout"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TelemetryConfig は OTLP エクスポートの設定です。OTLPEndpoint が空なら無効です。
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" toml:"service_name"`
}

func Default() *Config {
	return &Config{
		Game: GameConfig{
			ServerURL: "ws://localhost:8080",
			GameID:    "default",
		},
		Bots: BotsConfig{
			Initial:        0,
			NamePrefix:     "bot",
			Policy:         application.PolicyGreedy.String(),
			TickInterval:   application.DefaultTickInterval,
			ConnectTimeout: application.DefaultConnectTimeout,
			StopTimeout:    application.DefaultStopTimeout,
		},
		Server: ServerConfig{
			GRPCAddr:        ":50051",
			HTTPAddr:        ":8081",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "rso-bots",
		},
	}
}

// Load は path の設定ファイルを読み込みます。path が空なら既定値と環境変数のみを使います。
// カレントディレクトリの .env は存在すれば読み込まれます。既に設定済みの環境変数は上書きしません。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(path, []byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars は ${VAR_NAME} を環境変数の値で置き換えます。未設定なら空文字です。
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"bots.tick_interval", cfg.Bots.TickIntervalRaw, &cfg.Bots.TickInterval},
		{"bots.connect_timeout", cfg.Bots.ConnectTimeoutRaw, &cfg.Bots.ConnectTimeout},
		{"bots.stop_timeout", cfg.Bots.StopTimeoutRaw, &cfg.Bots.StopTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Game.ServerURL = utils.GetEnvDefault("GAME_SERVER_URL", cfg.Game.ServerURL)
	cfg.Game.GameID = utils.GetEnvDefault("GAME_ID", cfg.Game.GameID)
	cfg.Game.AccessToken = utils.GetEnvDefault("GAME_ACCESS_TOKEN", cfg.Game.AccessToken)
	cfg.Bots.Initial = utils.GetEnvInt("INITIAL_BOTS", cfg.Bots.Initial)
	cfg.Bots.NamePrefix = utils.GetEnvDefault("BOT_NAME_PREFIX", cfg.Bots.NamePrefix)
	cfg.Bots.Policy = utils.GetEnvDefault("BOT_POLICY", cfg.Bots.Policy)
	cfg.Bots.TickInterval = utils.GetEnvDuration("BOT_MOVE_INTERVAL", cfg.Bots.TickInterval)
	cfg.Logging.Level = utils.GetEnvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = utils.GetEnvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Server.GRPCAddr = utils.GetEnvDefault("GRPC_ADDR", cfg.Server.GRPCAddr)
	cfg.Server.HTTPAddr = utils.GetEnvDefault("HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Telemetry.OTLPEndpoint = utils.GetEnvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
}

// Validate は最初に見つかった不正な設定をエラーとして返します。
func (c *Config) Validate() error {
	u, err := url.Parse(c.Game.ServerURL)
	if err != nil {
		return fmt.Errorf("game.server_url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("game.server_url %q must be a ws, wss, http or https URL", c.Game.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("game.server_url %q has no host", c.Game.ServerURL)
	}
	if c.Game.GameID == "" {
		return errors.New("game.game_id is required")
	}
	if c.Bots.Initial < 0 {
		return fmt.Errorf("bots.initial must not be negative, got %d", c.Bots.Initial)
	}
	if _, err := application.ParsePolicyKind(c.Bots.Policy); err != nil {
		return fmt.Errorf("bots.policy: %w", err)
	}
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"bots.tick_interval", c.Bots.TickInterval},
		{"bots.connect_timeout", c.Bots.ConnectTimeout},
		{"bots.stop_timeout", c.Bots.StopTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
	} {
		if f.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", f.name, f.d)
		}
	}
	if c.Server.GRPCAddr == "" {
		return errors.New("server.grpc_addr is required")
	}
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}
	return nil
}

// SessionConfig はセッション層へ渡すタイミング設定です。
func (c *Config) SessionConfig() application.SessionConfig {
	return application.SessionConfig{
		TickInterval:   c.Bots.TickInterval,
		ConnectTimeout: c.Bots.ConnectTimeout,
	}
}

// BotName は初期ボットの n 番目の名前です。
func (c *Config) BotName(n int) string {
	return c.Bots.NamePrefix + "-" + strconv.Itoa(n)
}
