// Package config loads layered configuration: a yaml file when one
// exists, overridden by environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load builds a viper instance reading <configName>.yaml from
// configPath (plus the working directory and ./config as fallbacks).
// A missing file is not an error; environment variables still apply.
func Load(configPath, configName string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, dir := range []string{configPath, ".", "./config"} {
		v.AddConfigPath(dir)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}
