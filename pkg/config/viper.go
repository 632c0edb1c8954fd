// Package config initializes the process-wide Viper instance used by the
// CLI. Values come from a config file, CAMPHARVEST_* environment variables
// and command-line flags bound by the root command.
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	internalconfig "github.com/JakeFAU/camp-harvester/internal/config"
	"github.com/JakeFAU/camp-harvester/internal/logging"
)

// ConfigFile, when set before InitConfig runs, names an explicit config file
// and disables the search paths.
var ConfigFile string

// InitConfig initializes the global Viper instance. It is meant to run once
// at startup via cobra.OnInitialize.
func InitConfig() {
	if ConfigFile != "" {
		viper.SetConfigFile(ConfigFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/campharvest/")
		viper.AddConfigPath("$HOME/.campharvest")
	}

	internalconfig.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix(internalconfig.EnvPrefix) // e.g., CAMPHARVEST_RUN_CONCURRENCY=5
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The semantic extractor also honors the provider's conventional variable.
	_ = viper.BindEnv("llm.api_key", "CAMPHARVEST_LLM_API_KEY", "ANTHROPIC_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logging.L.Debug("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
