package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Game     GameConfig
	Strategy StrategyConfig
	Runner   RunnerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type GameConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PlayerID          string        `mapstructure:"player_id"`
	Scenario          int           `mapstructure:"scenario"`
	VenueCapacity     int           `mapstructure:"venue_capacity"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        uint          `mapstructure:"max_retries"`
	RetryInterval     time.Duration `mapstructure:"retry_interval"`
	MaxElapsed        time.Duration `mapstructure:"max_elapsed"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Simulate          bool          `mapstructure:"simulate"`
	Seed              int64         `mapstructure:"seed"`
	MaxRejections     int           `mapstructure:"max_rejections"`
}

type StrategyConfig struct {
	Scenarios []ScenarioConfig `mapstructure:"scenarios"`
}

// ScenarioConfig describes the rule cascade for one scenario. Rules are
// evaluated in the listed order.
type ScenarioConfig struct {
	ID          int                `mapstructure:"id"`
	Name        string             `mapstructure:"name"`
	Focus       []string           `mapstructure:"focus"`
	Bonus       string             `mapstructure:"bonus"`
	Companion   string             `mapstructure:"companion"`
	Sentinel    float64            `mapstructure:"sentinel"` // progress ratio reported for zero quotas
	Rules       []RuleConfig       `mapstructure:"rules"`
	Constraints []ConstraintConfig `mapstructure:"constraints"`
	Frequencies map[string]float64 `mapstructure:"frequencies"`
}

type RuleConfig struct {
	Kind       string   `mapstructure:"kind"`
	Attributes []string `mapstructure:"attributes"`
	Threshold  float64  `mapstructure:"threshold"`
}

// ConstraintConfig is only used by the simulator, which has no service to ask.
type ConstraintConfig struct {
	Attribute string `mapstructure:"attribute"`
	MinCount  int    `mapstructure:"min_count"`
}

type RunnerConfig struct {
	ProgressEvery int `mapstructure:"progress_every"`
}

type DatabaseConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addresses   []string      `mapstructure:"addresses"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	ClusterMode bool          `mapstructure:"cluster_mode"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	LiveWindow  time.Duration `mapstructure:"live_window"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

func Load() (*Config, error) {
	return LoadWith(viper.GetViper())
}

// LoadWith reads configuration through v, which lets callers bind flags first.
func LoadWith(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/doorman/")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOORMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("game.base_url", "https://berghain.challenges.listenlabs.ai")
	v.SetDefault("game.player_id", "")
	v.SetDefault("game.scenario", 1)
	v.SetDefault("game.venue_capacity", 1000)
	v.SetDefault("game.timeout", "10s")
	v.SetDefault("game.max_retries", 5)
	v.SetDefault("game.retry_interval", "250ms")
	v.SetDefault("game.max_elapsed", "2m")
	v.SetDefault("game.requests_per_second", 20.0)
	v.SetDefault("game.simulate", false)
	v.SetDefault("game.seed", 1)
	v.SetDefault("game.max_rejections", 20000)
	v.SetDefault("strategy.scenarios", DefaultScenarios())
	v.SetDefault("runner.progress_every", 50)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "doorman")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "doorman")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.cluster_mode", false)
	v.SetDefault("redis.key_prefix", "doorman")
	v.SetDefault("redis.live_window", "10m")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) Validate() error {
	if c.Game.VenueCapacity <= 0 {
		return fmt.Errorf("game.venue_capacity must be positive, got %d", c.Game.VenueCapacity)
	}
	if !c.Game.Simulate && strings.TrimSpace(c.Game.BaseURL) == "" {
		return errors.New("game.base_url is required unless game.simulate is set")
	}
	if c.Runner.ProgressEvery <= 0 {
		return fmt.Errorf("runner.progress_every must be positive, got %d", c.Runner.ProgressEvery)
	}
	if _, err := c.Strategy.Scenario(c.Game.Scenario); err != nil {
		return err
	}
	if c.Redis.Enabled && len(c.Redis.Addresses) == 0 {
		return errors.New("redis.addresses is required when redis is enabled")
	}
	return nil
}

func (s StrategyConfig) Scenario(id int) (ScenarioConfig, error) {
	for _, scenario := range s.Scenarios {
		if scenario.ID == id {
			return scenario, nil
		}
	}
	return ScenarioConfig{}, fmt.Errorf("scenario %d is not configured", id)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
