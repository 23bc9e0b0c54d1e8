//Package config loads the bot configuration from defaults, an optional YAML file, a .env file
//and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

//Config is the full bot configuration
type Config struct {
	Discord   DiscordConfig   `koanf:"discord"`
	DB        DBConfig        `koanf:"db"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Autorole  AutoroleConfig  `koanf:"autorole"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Breaker   BreakerConfig   `koanf:"breaker"`
}

//DiscordConfig holds gateway credentials
type DiscordConfig struct {
	Token string `koanf:"token"`
	//DevUID is a user that may run admin commands in every guild
	DevUID string `koanf:"dev_uid"`
}

//DBConfig describes the RethinkDB connection pool
type DBConfig struct {
	Address    string `koanf:"address"`
	Name       string `koanf:"name"`
	InitialCap int    `koanf:"initial_cap"`
	MaxOpen    int    `koanf:"max_open"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type MetricsConfig struct {
	//Listen is the address of the /metrics endpoint; empty disables it
	Listen string `koanf:"listen"`
}

//AutoroleConfig tunes the autorole engine
type AutoroleConfig struct {
	//FeatureDefault applies to guilds that never toggled the autorole feature
	FeatureDefault bool `koanf:"feature_default"`
	DMOnGrant      bool `koanf:"dm_on_grant"`
}

//SchedulerConfig tunes the background sweeps
type SchedulerConfig struct {
	TimedInterval      time.Duration `koanf:"timed_interval"`
	AntiquityInterval  time.Duration `koanf:"antiquity_interval"`
	AntiquityBootDelay time.Duration `koanf:"antiquity_boot_delay"`
	AntiquityPageSize  int           `koanf:"antiquity_page_size"`
	AntiquityMaxPages  int           `koanf:"antiquity_max_pages"`
	AntiquityPageDelay time.Duration `koanf:"antiquity_page_delay"`
}

//BreakerConfig tunes the circuit breaker in front of the Discord REST API
type BreakerConfig struct {
	MaxFailures uint32        `koanf:"max_failures"`
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		DB: DBConfig{
			Name:       "txbot",
			InitialCap: 2,
			MaxOpen:    20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
		Autorole: AutoroleConfig{
			FeatureDefault: true,
			DMOnGrant:      false,
		},
		Scheduler: SchedulerConfig{
			TimedInterval:      time.Minute,
			AntiquityInterval:  12 * time.Hour,
			AntiquityBootDelay: 2 * time.Minute,
			AntiquityPageSize:  1000,
			AntiquityMaxPages:  100,
			AntiquityPageDelay: 500 * time.Millisecond,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			OpenTimeout: 30 * time.Second,
		},
	}
}

//Validate checks that required values are present and intervals make sense
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("discord.token must be set"))
	}
	if c.DB.Address == "" {
		errs = append(errs, fmt.Errorf("db.address must be set"))
	}
	if c.DB.Name == "" {
		errs = append(errs, fmt.Errorf("db.name must not be empty"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Scheduler.TimedInterval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.timed_interval must be positive"))
	}
	if c.Scheduler.AntiquityInterval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.antiquity_interval must be positive"))
	}
	if c.Scheduler.AntiquityPageSize < 1 || c.Scheduler.AntiquityPageSize > 1000 {
		errs = append(errs, fmt.Errorf("scheduler.antiquity_page_size must be within 1-1000"))
	}
	if c.Scheduler.AntiquityMaxPages < 1 {
		errs = append(errs, fmt.Errorf("scheduler.antiquity_max_pages must be at least 1"))
	}
	if c.Breaker.MaxFailures == 0 {
		errs = append(errs, fmt.Errorf("breaker.max_failures must be at least 1"))
	}
	return errors.Join(errs...)
}
