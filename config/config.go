// Package config loads a service or client's configuration from an
// ini/yaml/json file via viper. The only command-line flag (parsed
// through pflag) is the config file path.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Global mirrors the [global] section every instance's config file
// carries: identity, environment, and the socket defaults a service
// binds with absent an explicit override.
type Global struct {
	Name          string `mapstructure:"name"`
	Env           string `mapstructure:"env"`
	Version       string `mapstructure:"version"`
	Description   string `mapstructure:"description"`
	Host          string `mapstructure:"host"`
	SocketType    string `mapstructure:"socket_type"`
	ConnectMethod string `mapstructure:"connect_method"`
	PIDDir        string `mapstructure:"pid_dir"`
	TimeZone      string `mapstructure:"timezone"`
}

// RedisServiceRegistry mirrors the [redis_service_registry] section.
type RedisServiceRegistry struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	DB   int    `mapstructure:"db"`
}

// Config is the parsed configuration document for one process.
type Config struct {
	Global               Global               `mapstructure:"global"`
	RedisServiceRegistry RedisServiceRegistry `mapstructure:"redis_service_registry"`
}

// Flags are the command-line flags every microrpc binary accepts.
type Flags struct {
	ConfigFile string
}

// ParseFlags builds a pflag FlagSet that also carries flag.CommandLine
// (so either style of flag works) and parses args, mirroring the original
// service's -c/--config_file entrypoint argument.
func ParseFlags(args []string) Flags {
	fs := pflag.NewFlagSet("microrpc", pflag.ContinueOnError)
	configFile := fs.StringP("config_file", "c", "", "path to the service's config file")
	fs.AddGoFlagSet(flag.CommandLine)
	_ = fs.Parse(args)
	return Flags{ConfigFile: *configFile}
}

// Load reads and unmarshals the config file at path. Viper infers the
// format from the file extension (ini, yaml, json, toml all work).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.RedisServiceRegistry.Host == "" {
		cfg.RedisServiceRegistry.Host = "127.0.0.1"
	}
	if cfg.RedisServiceRegistry.Port == 0 {
		cfg.RedisServiceRegistry.Port = 6379
	}
	return &cfg, nil
}

// SetTimeZone sets the process timezone from the configured name,
// falling back to the system default if unset. Go has no tzset
// equivalent; the standard way to change what time.Now formats as is
// to replace time.Local.
func SetTimeZone(name string) error {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("config: loading timezone %q: %w", name, err)
	}
	time.Local = loc
	return nil
}

// Hostname returns the machine's hostname, or "localhost" if it cannot
// be read.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}
