package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const defaultDB = "caltab.db"

// config is read by viper from caltab.yaml, CALTAB_* environment variables
// and command-line flags, in increasing order of precedence.
type config struct {
	DB       string `mapstructure:"db"`
	Verbose  bool   `mapstructure:"verbose"`
	Compress bool   `mapstructure:"compress"`
	MmapSize int    `mapstructure:"mmap_size"`
}

func loadConfig(v *viper.Viper, flags *pflag.FlagSet) (*config, error) {
	if path, _ := flags.GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("caltab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "caltab"))
		}
	}

	v.SetDefault("db", defaultDB)
	v.SetDefault("mmap_size", 0)

	v.SetEnvPrefix("caltab")
	v.AutomaticEnv()

	for _, name := range []string{"db", "verbose", "compress"} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(name, f); err != nil {
				return nil, err
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}
