package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string        `mapstructure:"ENV"`
	Port               string        `mapstructure:"PORT"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	AdminKey           string        `mapstructure:"ADMIN_KEY"`
	OSRMBaseURL        string        `mapstructure:"OSRM_BASE_URL"`
	OracleTimeout      time.Duration `mapstructure:"ORACLE_TIMEOUT"`
	HazardPollInterval time.Duration `mapstructure:"HAZARD_POLL_INTERVAL"`
	ExpirySweepEvery   time.Duration `mapstructure:"EXPIRY_SWEEP_INTERVAL"`
	CORSAllowed        string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel           string        `mapstructure:"LOG_LEVEL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("OSRM_BASE_URL", "https://router.project-osrm.org/route/v1")
	v.SetDefault("ORACLE_TIMEOUT", "8s")
	v.SetDefault("HAZARD_POLL_INTERVAL", "30s")
	v.SetDefault("EXPIRY_SWEEP_INTERVAL", "1m")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
