package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// DefaultSecret signs session cookies when no secret is configured.
const DefaultSecret = "change-me"

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	SendQueue    int           `mapstructure:"send_queue"`
	Secret       string        `mapstructure:"secret"`
	JoinLimit    int           `mapstructure:"join_limit"`
	JoinInterval time.Duration `mapstructure:"join_interval"`
	LogLevel     string        `mapstructure:"log_level"`
}

// InsecureSecret reports a release build still signing cookies with DefaultSecret.
func (c *Config) InsecureSecret() bool {
	return c.Mode == "release" && c.Secret == DefaultSecret
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PingPeriod <= 0 {
		return errors.New("ping_period must be positive")
	}
	if c.JoinLimit > 0 && c.JoinInterval <= 0 {
		return errors.New("join_interval must be positive when join_limit is set")
	}
	return nil
}

// newViper prepares a viper instance reading config/config.<CONFIG_ENV>.yaml
// (default env "dev") with DROP_* environment overrides.
func newViper(prefix string) (*viper.Viper, string) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", prefix, env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("DROP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v, fileName
}

func readFile(v *viper.Viper, fileName string) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
}

func Load() (*Config, error) {
	v, fileName := newViper("config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("send_queue", 32)
	v.SetDefault("secret", DefaultSecret)
	v.SetDefault("join_limit", 10)
	v.SetDefault("join_interval", "1m")
	v.SetDefault("log_level", "info")

	readFile(v, fileName)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.InsecureSecret() {
		log.Warn().Str("module", "config").Msg("secret is the built-in default; set DROP_SECRET for release")
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

// ApplyLogLevel sets the zerolog global level, keeping info on bad input.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
