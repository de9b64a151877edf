package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sheerbytes/thrudrop/internal/logging"
)

// EnvPrefix prefixes every environment variable read here.
const EnvPrefix = "THRUDROP"

// ErrUsage marks errors caused by the command line itself.
var ErrUsage = errors.New("usage")

// ServerConfig holds configuration for the server binary. Port and TargetDir
// come from the command line; everything else is operator tuning read from
// THRUDROP_* environment variables and never changes the wire protocol.
type ServerConfig struct {
	Port      int
	TargetDir string

	Workers         int
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	AdminAddr       string
}

// Addr returns the upload listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}

// ClientConfig holds configuration for the uploader binary.
type ClientConfig struct {
	Addr     string
	Files    []string
	LogLevel string
	FieldGap time.Duration
}

// ParseServerConfig parses `<port> <targetDirectory>` plus the environment.
// Defaults: workers=5, log level info, text logs, 30s shutdown timeout, no
// admin endpoint.
func ParseServerConfig(args []string) (ServerConfig, error) {
	return parseServerConfigWithViper(viper.New(), args)
}

// parseServerConfigWithViper is an internal helper for testing with isolated
// viper instances.
func parseServerConfigWithViper(v *viper.Viper, args []string) (ServerConfig, error) {
	setupViper(v)
	v.SetDefault("workers", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("admin_addr", "")

	if len(args) != 2 {
		return ServerConfig{}, fmt.Errorf("%w: expected <port> <targetDirectory>, got %d arguments", ErrUsage, len(args))
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port < 0 || port > 65535 {
		return ServerConfig{}, fmt.Errorf("%w: invalid port %q", ErrUsage, args[0])
	}

	cfg := ServerConfig{
		Port:            port,
		TargetDir:       args[1],
		Workers:         v.GetInt("workers"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		LogFormat:       strings.ToLower(v.GetString("log_format")),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		AdminAddr:       v.GetString("admin_addr"),
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later and less clearly.
func (c ServerConfig) Validate() error {
	info, err := os.Stat(c.TargetDir)
	if err != nil {
		return fmt.Errorf("target directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target directory %s: not a directory", c.TargetDir)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%s_WORKERS must be at least 1, got %d", EnvPrefix, c.Workers)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%s_LOG_LEVEL: unknown level %q", EnvPrefix, c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%s_LOG_FORMAT: unknown format %q", EnvPrefix, c.LogFormat)
	}
	return nil
}

// ParseClientConfig parses `<addr> <file>...` plus the environment.
// Defaults: log level info, 50ms field gap.
func ParseClientConfig(args []string) (ClientConfig, error) {
	return parseClientConfigWithViper(viper.New(), args)
}

func parseClientConfigWithViper(v *viper.Viper, args []string) (ClientConfig, error) {
	setupViper(v)
	v.SetDefault("log_level", "info")
	v.SetDefault("field_gap", 50*time.Millisecond)

	if len(args) < 2 {
		return ClientConfig{}, fmt.Errorf("%w: expected <addr> <file>...", ErrUsage)
	}
	if _, _, err := net.SplitHostPort(args[0]); err != nil {
		return ClientConfig{}, fmt.Errorf("%w: invalid address %q: %v", ErrUsage, args[0], err)
	}
	cfg := ClientConfig{
		Addr:     args[0],
		Files:    args[1:],
		LogLevel: strings.ToLower(v.GetString("log_level")),
		FieldGap: v.GetDuration("field_gap"),
	}
	if !logging.ValidLevel(cfg.LogLevel) {
		return ClientConfig{}, fmt.Errorf("%s_LOG_LEVEL: unknown level %q", EnvPrefix, cfg.LogLevel)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
