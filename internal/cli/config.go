package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/calltree/internal/importance"
	"github.com/mesh-intelligence/calltree/internal/paths"
	"github.com/mesh-intelligence/calltree/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	// Config keys.
	cfgKeyBackend         = "backend"
	cfgKeyDataDir         = "data_dir"
	cfgKeyLogLevel        = "log_level"
	cfgKeyOTelEndpoint    = "otel_endpoint"
	cfgKeyImportanceTable = "importance_table"

	envLogLevel = "CALLTREE_LOG_LEVEL"
)

// configFile holds the structure written to config.yaml by init.
type configFile struct {
	Backend         string            `yaml:"backend"`
	DataDir         string            `yaml:"data_dir,omitempty"`
	LogLevel        string            `yaml:"log_level"`
	OTelEndpoint    string            `yaml:"otel_endpoint,omitempty"`
	ImportanceTable map[string]string `yaml:"importance_table"`
}

// loadConfig reads config.yaml from configDir using Viper. A missing
// config.yaml is not an error; defaults apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyLogLevel, "info")
	if err := v.BindEnv(cfgKeyLogLevel, envLogLevel); err != nil {
		return nil, fmt.Errorf("bind %s: %w", envLogLevel, err)
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// defaultConfig is what init writes: the sqlite backend, info logging and
// the default importance table spelled out so it can be edited.
func defaultConfig(dataDir string) configFile {
	table := make(map[string]string)
	for c, imp := range importance.DefaultTable().Map() {
		table[c.String()] = imp.String()
	}
	return configFile{
		Backend:         types.BackendSQLite,
		DataDir:         dataDir,
		LogLevel:        "info",
		ImportanceTable: table,
	}
}

// writeConfigIfMissing creates config.yaml in configDir unless it exists.
// Reports whether it wrote the file.
func writeConfigIfMissing(configDir string, cfg configFile) (bool, error) {
	path := paths.ConfigFile(configDir)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	header := []byte("# calltree configuration\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return false, err
	}
	return true, nil
}
