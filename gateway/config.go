package gateway

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries the runtime settings of the HTTP gateway. Values come from
// an optional ledger.yaml file and LEDGER_* environment variables; the
// environment wins.
type Config struct {
	Addr          string        `mapstructure:"addr"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFile       string        `mapstructure:"journal"` // JSONL transaction log path, empty for in-memory
	DatabaseURL   string        `mapstructure:"database_url"`
	LockTimeout   time.Duration `mapstructure:"lock_timeout"`
	CommitRetries uint64        `mapstructure:"commit_retries"`
}

// LoadConfig reads the gateway configuration from path (a directory holding
// ledger.yaml), falling back to defaults when no file is present.
func LoadConfig(path string) (*Config, error) {
	// A .env file is a convenience for local runs; absence is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("lock_timeout", 5*time.Second)
	v.SetDefault("commit_retries", 3)

	v.AddConfigPath(path)
	v.SetConfigName("ledger")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LEDGER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
