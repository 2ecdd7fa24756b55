// Package config provides configuration management for plantctl using Viper
// for layered loading from flags, environment variables and a YAML file.
//
// Precedence, highest first: command-line flags, PLANTCTL_* environment
// variables (plus the PLANTUML_JAR, PLANTUML_HOST and PLANTUML_CACHE_DIR
// aliases), the .plantctl.yml file, then built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/conneroisu/plantctl/internal/batch"
	"github.com/conneroisu/plantctl/internal/download"
	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/logging"
	"github.com/conneroisu/plantctl/internal/renderer"
	"github.com/conneroisu/plantctl/internal/validation"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of plantctl environment variables.
const EnvPrefix = "PLANTCTL"

// FileName is the default config file name, without extension.
const FileName = ".plantctl"

// Viper keys.
const (
	KeyJava        = "java"
	KeyJar         = "plantuml"
	KeyRemoteHost  = "remote_host"
	KeyUseLocal    = "use_local"
	KeyUseRemote   = "use_remote"
	KeyConcurrency = "concurrency"
	KeyPolicy      = "policy"
	KeyFormat      = "format"
	KeyOutputDir   = "output_dir"
	KeyCacheDir    = "cache_dir"
	KeyEncoding    = "encoding"
	KeyTimeout     = "timeout"
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
)

type Config struct {
	Java        string    `mapstructure:"java" yaml:"java"`
	Jar         string    `mapstructure:"plantuml" yaml:"plantuml"`
	RemoteHost  string    `mapstructure:"remote_host" yaml:"remote_host"`
	UseLocal    bool      `mapstructure:"use_local" yaml:"use_local"`
	UseRemote   bool      `mapstructure:"use_remote" yaml:"use_remote"`
	Concurrency int       `mapstructure:"concurrency" yaml:"concurrency"`
	Policy      string    `mapstructure:"policy" yaml:"policy"`
	Format      string    `mapstructure:"format" yaml:"format"`
	OutputDir   string    `mapstructure:"output_dir" yaml:"output_dir"`
	CacheDir    string    `mapstructure:"cache_dir" yaml:"cache_dir"`
	Encoding    string    `mapstructure:"encoding" yaml:"encoding"`
	Timeout     string    `mapstructure:"timeout" yaml:"timeout"`
	Log         LogConfig `mapstructure:"log" yaml:"log"`

	policy   batch.Policy
	format   renderer.Format
	timeout  time.Duration
	logLevel logging.LogLevel
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		RemoteHost:  renderer.DefaultHost,
		Concurrency: runtime.NumCPU(),
		Policy:      batch.FailFast.String(),
		Format:      renderer.FormatPNG.String(),
		OutputDir:   ".",
		CacheDir:    download.DefaultCacheDir(),
		Timeout:     "0s",
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
	_ = cfg.Validate()
	return cfg
}

// SetDefaults registers every key with its default so environment variables
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyJava, d.Java)
	v.SetDefault(KeyJar, d.Jar)
	v.SetDefault(KeyRemoteHost, d.RemoteHost)
	v.SetDefault(KeyUseLocal, d.UseLocal)
	v.SetDefault(KeyUseRemote, d.UseRemote)
	v.SetDefault(KeyConcurrency, d.Concurrency)
	v.SetDefault(KeyPolicy, d.Policy)
	v.SetDefault(KeyFormat, d.Format)
	v.SetDefault(KeyOutputDir, d.OutputDir)
	v.SetDefault(KeyCacheDir, d.CacheDir)
	v.SetDefault(KeyEncoding, d.Encoding)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyLogLevel, d.Log.Level)
	v.SetDefault(KeyLogFormat, d.Log.Format)
}

// BindEnv enables PLANTCTL_* variables and the PlantUML aliases.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv(KeyJar, EnvPrefix+"_PLANTUML", renderer.JarEnv)
	_ = v.BindEnv(KeyRemoteHost, EnvPrefix+"_REMOTE_HOST", renderer.HostEnv)
	_ = v.BindEnv(KeyCacheDir, EnvPrefix+"_CACHE_DIR", download.CacheDirEnv)
}

// ReadFile points v at cfgFile, or searches the working directory for
// .plantctl.yml. A missing default file is not an error.
func ReadFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return plerrors.NewConfigError(plerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to read config file: %v", err))
	}
	return nil
}

// Load returns the validated configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom returns the validated configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, plerrors.NewConfigError(plerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to decode configuration: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and caches the parsed values.
func (c *Config) Validate() error {
	var errs plerrors.ValidationErrorCollection

	if c.Concurrency < 1 {
		errs.AddField(KeyConcurrency, c.Concurrency, "concurrency must be at least 1")
	}

	if p, err := batch.ParsePolicy(c.Policy); err != nil {
		errs.AddField(KeyPolicy, c.Policy, "must be fail-fast or collect-all")
	} else {
		c.policy = p
	}

	if f, err := renderer.ParseFormat(c.Format); err != nil {
		errs.AddField(KeyFormat, c.Format, "must be one of "+strings.Join(renderer.FormatNames(), ", "))
	} else {
		c.format = f
	}

	if c.RemoteHost != "" {
		if _, err := validation.NormalizeHost(c.RemoteHost); err != nil {
			errs.AddField(KeyRemoteHost, c.RemoteHost, err.Error())
		}
	}

	if c.UseLocal && c.UseRemote {
		errs.AddField(KeyUseLocal, c.UseLocal, "use_local and use_remote are mutually exclusive")
	}

	if err := validation.ValidateCacheDir(c.CacheDir); err != nil {
		errs.AddField(KeyCacheDir, c.CacheDir, err.Error())
	}

	timeout := strings.TrimSpace(c.Timeout)
	if timeout == "" {
		timeout = "0s"
	}
	if d, err := time.ParseDuration(timeout); err != nil || d < 0 {
		errs.AddField(KeyTimeout, c.Timeout, "must be a non-negative duration such as 30s")
	} else {
		c.timeout = d
	}

	if lvl, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs.AddField(KeyLogLevel, c.Log.Level, "must be debug, info, warn or error")
	} else {
		c.logLevel = lvl
	}

	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		errs.AddField(KeyLogFormat, c.Log.Format, "must be text or json")
	}

	if errs.HasErrors() {
		return errs.ToPlantError()
	}
	return nil
}

// BatchPolicy returns the parsed failure policy.
func (c *Config) BatchPolicy() batch.Policy { return c.policy }

// OutputFormat returns the parsed default output format.
func (c *Config) OutputFormat() renderer.Format { return c.format }

// TimeoutDuration returns the overall timeout; zero means none.
func (c *Config) TimeoutDuration() time.Duration { return c.timeout }

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logging.LogLevel { return c.logLevel }

// LoggerConfig returns the logger settings for this configuration.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultConfig()
	lc.Level = c.logLevel
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	return lc
}

// YAML renders the configuration as a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteFile writes the configuration to path. Existing files are only
// replaced when force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return plerrors.NewConfigError(plerrors.ErrCodeConfigInvalid,
				fmt.Sprintf("%s already exists (use --force to overwrite)", path))
		}
	}

	data, err := c.YAML()
	if err != nil {
		return plerrors.NewInternalError(plerrors.ErrCodeInternalError, "failed to encode configuration", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "failed to create config directory", err).WithPath(dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "failed to write config file", err).WithPath(path)
	}
	return nil
}
