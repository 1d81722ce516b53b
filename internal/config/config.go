package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/yumyai/seqst/pkg/hits"
)

// EnvPrefix prefixes every environment variable read into the config,
// e.g. SEQST_COV or SEQST_BLAST_DB.
const EnvPrefix = "SEQST"

// DefaultFile is picked up from the working directory when no config file is
// given explicitly.
const DefaultFile = "seqst.yaml"

type BlastConfig struct {
	Bin        string `mapstructure:"bin" yaml:"bin"`
	DB         string `mapstructure:"db" yaml:"db"`
	MaxTargets int    `mapstructure:"max_targets" yaml:"max_targets"`
	Remote     bool   `mapstructure:"remote" yaml:"remote"`
}

type IndexConfig struct {
	Path     string        `mapstructure:"path" yaml:"path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

type Config struct {
	hits.Thresholds `mapstructure:",squash" yaml:",inline"`

	Blast    BlastConfig `mapstructure:"blast" yaml:"blast"`
	Index    IndexConfig `mapstructure:"index" yaml:"index"`
	Mirror   string      `mapstructure:"mirror" yaml:"mirror"`
	LogLevel string      `mapstructure:"log_level" yaml:"log_level"`
}

func Defaults() Config {
	return Config{
		Thresholds: hits.DefaultThresholds(),
		Blast: BlastConfig{
			Bin:        "blastp",
			DB:         "nr",
			MaxTargets: 500,
		},
		Index: IndexConfig{
			CacheTTL: 10 * time.Minute,
		},
		LogLevel: "info",
	}
}

// SetDefaults registers every key of Defaults on v, so that environment
// variables are seen by Unmarshal even without a config file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("ident", d.Identity)
	v.SetDefault("cov", d.Coverage)
	v.SetDefault("gaps", d.GapRuns)
	v.SetDefault("blast.bin", d.Blast.Bin)
	v.SetDefault("blast.db", d.Blast.DB)
	v.SetDefault("blast.max_targets", d.Blast.MaxTargets)
	v.SetDefault("blast.remote", d.Blast.Remote)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("index.cache_ttl", d.Index.CacheTTL)
	v.SetDefault("mirror", d.Mirror)
	v.SetDefault("log_level", d.LogLevel)
}

// LoadDotEnv loads .env style files into the process environment. A missing
// file is not an error; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads defaults, the config file (explicit path, else DefaultFile when
// present) and SEQST_ environment variables into a validated Config.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Blast.Bin == "" {
		errs = append(errs, errors.New("blast.bin must not be empty"))
	}
	if c.Blast.MaxTargets < 0 {
		errs = append(errs, fmt.Errorf("blast.max_targets %d is negative", c.Blast.MaxTargets))
	}
	if c.Index.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("index.cache_ttl %s is negative", c.Index.CacheTTL))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
