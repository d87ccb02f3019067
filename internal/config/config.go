package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	RemoteURL          string        `mapstructure:"remote_url"`
	RemoteName         string        `mapstructure:"remote_name"`
	Branch             string        `mapstructure:"branch"`
	Token              string        `mapstructure:"token"`
	TokenFile          string        `mapstructure:"token_file"`
	WorkDir            string        `mapstructure:"work_dir"`
	SourceDir          string        `mapstructure:"source_dir"`
	Interval           time.Duration `mapstructure:"interval"`
	SyncOnChange       bool          `mapstructure:"sync_on_change"`
	IgnoreList         []string      `mapstructure:"ignore_list"`
	BinaryExtensions   []string      `mapstructure:"binary_extensions"`
	SizeRatioThreshold float64       `mapstructure:"size_ratio_threshold"`
	AuthorName         string        `mapstructure:"author_name"`
	AuthorEmail        string        `mapstructure:"author_email"`
	DaemonPort         int           `mapstructure:"daemon_port"`
	DBPath             string        `mapstructure:"db_path"`
	LogFile            string        `mapstructure:"log_file"`
	PreviewLimit       int           `mapstructure:"preview_limit"`

	// Dir is the directory the config was loaded from; not persisted.
	Dir string `mapstructure:"-"`
}

var Default = Config{
	RemoteName:         "origin",
	Branch:             "main",
	Interval:           5 * time.Minute,
	IgnoreList:         []string{".git", ".DS_Store", "*.tmp", "*.swp", "*.reposync.tmp"},
	BinaryExtensions:   []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".ico", ".tiff", ".pb", ".bin", ".dat", ".db", ".sqlite", ".pdf", ".zip"},
	SizeRatioThreshold: 0.2,
	AuthorName:         "reposync",
	AuthorEmail:        "reposync@localhost",
	DaemonPort:         9101,
	PreviewLimit:       10,
}

// Dir returns ~/.reposync, creating it when missing.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	dir := filepath.Join(home, ".reposync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}

	return dir, nil
}

func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	return LoadFrom(dir)
}

func LoadFrom(dir string) (*Config, error) {
	v := newViper(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Dir = dir

	return &cfg, nil
}

func newViper(dir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("remote_url", "")
	v.SetDefault("remote_name", Default.RemoteName)
	v.SetDefault("branch", Default.Branch)
	v.SetDefault("token", "")
	v.SetDefault("token_file", filepath.Join(dir, "token"))
	v.SetDefault("work_dir", filepath.Join(dir, "mirror"))
	v.SetDefault("source_dir", "")
	v.SetDefault("interval", Default.Interval)
	v.SetDefault("sync_on_change", false)
	v.SetDefault("ignore_list", Default.IgnoreList)
	v.SetDefault("binary_extensions", Default.BinaryExtensions)
	v.SetDefault("size_ratio_threshold", Default.SizeRatioThreshold)
	v.SetDefault("author_name", Default.AuthorName)
	v.SetDefault("author_email", Default.AuthorEmail)
	v.SetDefault("daemon_port", Default.DaemonPort)
	v.SetDefault("db_path", filepath.Join(dir, "reposync.db"))
	v.SetDefault("log_file", "")
	v.SetDefault("preview_limit", Default.PreviewLimit)

	v.SetEnvPrefix("REPOSYNC")
	v.AutomaticEnv()

	return v
}

// Save writes the persistent keys back to config.yaml in c.Dir.
func (c *Config) Save() error {
	v := newViper(c.Dir)

	v.Set("remote_url", c.RemoteURL)
	v.Set("remote_name", c.RemoteName)
	v.Set("branch", c.Branch)
	v.Set("work_dir", c.WorkDir)
	v.Set("source_dir", c.SourceDir)
	v.Set("interval", c.Interval.String())
	v.Set("sync_on_change", c.SyncOnChange)
	v.Set("ignore_list", c.IgnoreList)
	v.Set("binary_extensions", c.BinaryExtensions)

	path := filepath.Join(c.Dir, "config.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate normalizes paths and checks the keys the sync engine needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RemoteURL) == "" {
		return errors.New("remote_url is required")
	}
	if strings.TrimSpace(c.SourceDir) == "" {
		return errors.New("source_dir is required")
	}
	if strings.TrimSpace(c.Branch) == "" {
		return errors.New("branch must not be empty")
	}
	if c.RemoteName == "" {
		c.RemoteName = Default.RemoteName
	}
	if c.Interval < time.Second {
		return fmt.Errorf("interval %s is too short", c.Interval)
	}
	if c.SizeRatioThreshold <= 0 || c.SizeRatioThreshold > 1 {
		return fmt.Errorf("size_ratio_threshold must be in (0, 1], got %v", c.SizeRatioThreshold)
	}
	if c.PreviewLimit <= 0 {
		c.PreviewLimit = Default.PreviewLimit
	}

	var err error
	if c.SourceDir, err = absPath(c.SourceDir); err != nil {
		return fmt.Errorf("invalid source_dir: %w", err)
	}
	if c.WorkDir, err = absPath(c.WorkDir); err != nil {
		return fmt.Errorf("invalid work_dir: %w", err)
	}
	if c.SourceDir == c.WorkDir {
		return errors.New("source_dir and work_dir must differ")
	}
	if rel, err := filepath.Rel(c.SourceDir, c.WorkDir); err == nil && !strings.HasPrefix(rel, "..") {
		return errors.New("work_dir must not be inside source_dir")
	}

	return nil
}

func absPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[2:])
	}

	return filepath.Abs(p)
}
