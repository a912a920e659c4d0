package types

import "errors"

// Config holds backend selection and engine parameters for Open.
type Config struct {
	Backend  string `json:"backend" yaml:"backend"`
	DataDir  string `json:"data_dir" yaml:"data_dir"`
	LogLevel string `json:"log_level" yaml:"log_level"`

	// OTelEndpoint is the OTLP/HTTP trace endpoint; empty disables export.
	OTelEndpoint string `json:"otel_endpoint" yaml:"otel_endpoint"`

	// ImportanceTable maps criticality names to importance names. Missing
	// entries fall back to the default table.
	ImportanceTable map[string]string `json:"importance_table" yaml:"importance_table"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrLogLevel       = errors.New("unknown log level")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

var knownLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks that the Config is well-formed. The importance table is
// validated when the engine builds it.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if !knownLogLevels[c.LogLevel] {
		return ErrLogLevel
	}
	return nil
}
