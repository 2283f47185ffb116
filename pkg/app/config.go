package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rideline-io/rideline/pkg/log"
)

const (
	configFlagName = "config"
	envPrefix      = "RIDELINE"
)

var cfgFile string

// addConfigFlag adds --config and arranges for the file, RIDELINE_* variables and flags to be
// merged into viper before the command runs.
func addConfigFlag(fs *pflag.FlagSet) {
	fs.AddFlag(pflag.Lookup(configFlagName))

	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// readConfig loads the config file if one is configured or found in the default locations.
func readConfig(basename string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, "."+envPrefixLower()))
		}
		viper.AddConfigPath(filepath.Join("/etc", envPrefixLower()))
		viper.SetConfigName(basename)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return err
	}

	log.Info("Using config file", "file", viper.ConfigFileUsed())
	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			log.Warn("Config file changed, restart to apply", "file", e.Name)
		}
	})
	viper.WatchConfig()
	return nil
}

func envPrefixLower() string {
	return strings.ToLower(envPrefix)
}

func init() {
	pflag.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from the specified file, support JSON, TOML, YAML, HCL, or Java properties formats.")
}
