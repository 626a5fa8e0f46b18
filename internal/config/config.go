// Package config assembles runtime settings from defaults, an optional YAML
// file, IMAGE_GEN_* environment variables, a .env file and command flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/manash/image-gen/internal/apperr"
	"github.com/manash/image-gen/internal/retry"
	"github.com/manash/image-gen/internal/session"
)

const (
	EnvPrefix  = "IMAGE_GEN"
	AppName    = "image-gen"
	configName = "config"

	KeyOutputDir         = "output_dir"
	KeySessionFile       = "session_file"
	KeyBasename          = "basename"
	KeyTimeout           = "timeout"
	KeyRetryMaxAttempts  = "retry.max_attempts"
	KeyRetryBaseDelay    = "retry.base_delay"
	KeyGeminiTransport   = "gemini.transport"
	KeyOpenRouterBaseURL = "openrouter.base_url"
	KeyOpenAIBaseURL     = "openai.base_url"
	KeyGeminiBaseURL     = "gemini.base_url"
	KeyLedgerPath        = "ledger.path"
	KeyLedgerEnabled     = "ledger.enabled"
	KeyDownloadStrict    = "download.strict"
	KeyTrustedHosts      = "download.trusted_hosts"
	KeyVerbose           = "verbose"
)

// Gemini family transports.
const (
	TransportOpenRouter = "openrouter"
	TransportGoogle     = "google"
)

type Config struct {
	OutputDir       string
	SessionFile     string
	Basename        string
	Timeout         time.Duration
	Retry           retry.Policy
	GeminiTransport string

	OpenRouterBaseURL string
	OpenAIBaseURL     string
	GeminiBaseURL     string

	LedgerPath    string
	LedgerEnabled bool
	Verbose       bool

	// DownloadStrict limits remote image downloads to the known result
	// hosts plus TrustedHosts.
	DownloadStrict bool
	TrustedHosts   []string

	// File is the config file that was read, if any.
	File string
}

type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()

	v.SetDefault(KeyOutputDir, session.DefaultOutputDir)
	v.SetDefault(KeySessionFile, session.DefaultFileName)
	v.SetDefault(KeyBasename, "gen")
	v.SetDefault(KeyTimeout, 120*time.Second)
	v.SetDefault(KeyRetryMaxAttempts, retry.DefaultMaxAttempts)
	v.SetDefault(KeyRetryBaseDelay, retry.DefaultBaseDelay)
	v.SetDefault(KeyGeminiTransport, TransportOpenRouter)
	v.SetDefault(KeyOpenRouterBaseURL, "")
	v.SetDefault(KeyOpenAIBaseURL, "")
	v.SetDefault(KeyGeminiBaseURL, "")
	v.SetDefault(KeyLedgerPath, "")
	v.SetDefault(KeyLedgerEnabled, true)
	v.SetDefault(KeyVerbose, false)
	v.SetDefault(KeyDownloadStrict, true)
	v.SetDefault(KeyTrustedHosts, []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// BindFlags lets command flags override file and environment values.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	if f := flags.Lookup(KeyVerbose); f != nil {
		if err := l.v.BindPFlag(KeyVerbose, f); err != nil {
			return err
		}
	}
	return nil
}

// Load reads cfgFile, or config.yaml from the default config directory
// when cfgFile is empty. Only an explicit file is required to exist.
func (l *Loader) Load(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		l.v.SetConfigFile(cfgFile)
	} else if dir, err := DefaultConfigDir(); err == nil {
		l.v.AddConfigPath(dir)
		l.v.SetConfigName(configName)
		l.v.SetConfigType("yaml")
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, apperr.New(apperr.KindConfiguration, "config", fmt.Errorf("failed to read config: %w", err))
		}
	}

	cfg := &Config{
		OutputDir:       l.v.GetString(KeyOutputDir),
		SessionFile:     l.v.GetString(KeySessionFile),
		Basename:        l.v.GetString(KeyBasename),
		Timeout:         l.v.GetDuration(KeyTimeout),
		GeminiTransport: strings.ToLower(l.v.GetString(KeyGeminiTransport)),
		Retry: retry.Policy{
			MaxAttempts: l.v.GetInt(KeyRetryMaxAttempts),
			BaseDelay:   l.v.GetDuration(KeyRetryBaseDelay),
			Multiplier:  retry.DefaultMultiplier,
		},
		OpenRouterBaseURL: l.v.GetString(KeyOpenRouterBaseURL),
		OpenAIBaseURL:     l.v.GetString(KeyOpenAIBaseURL),
		GeminiBaseURL:     l.v.GetString(KeyGeminiBaseURL),
		LedgerPath:        l.v.GetString(KeyLedgerPath),
		LedgerEnabled:     l.v.GetBool(KeyLedgerEnabled),
		Verbose:           l.v.GetBool(KeyVerbose),
		DownloadStrict:    l.v.GetBool(KeyDownloadStrict),
		TrustedHosts:      l.v.GetStringSlice(KeyTrustedHosts),
		File:              l.v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.GeminiTransport {
	case TransportOpenRouter, TransportGoogle:
	default:
		return apperr.Configuration("%s must be %q or %q, got %q", KeyGeminiTransport, TransportOpenRouter, TransportGoogle, c.GeminiTransport)
	}
	if c.Retry.MaxAttempts < 1 {
		return apperr.Configuration("%s must be at least 1", KeyRetryMaxAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return apperr.Configuration("%s cannot be negative", KeyRetryBaseDelay)
	}
	if c.Timeout <= 0 {
		return apperr.Configuration("%s must be positive", KeyTimeout)
	}
	if c.SessionFile == "" || c.OutputDir == "" {
		return apperr.Configuration("%s and %s cannot be empty", KeySessionFile, KeyOutputDir)
	}
	return nil
}

// LoadDotEnv loads dir/.env if present. Variables already set in the
// environment win.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// DefaultConfigDir returns the platform-specific config directory.
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv("IMAGE_GEN_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", AppName), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, AppName), nil
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, AppName), nil
	}
}
