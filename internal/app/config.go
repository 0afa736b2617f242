package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	// RootRef names the root component: a registered index or a loadable
	// definition reference.
	RootRef string
	// ConfigPath optionally points at a JSON file holding the root
	// component's configuration.
	ConfigPath string
	// ModulesPath optionally points at a directory of .hcl component
	// manifests registered before the root is built.
	ModulesPath string
	// DataDir hosts the embedded datastore files.
	DataDir string

	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.RootRef == "" {
		return nil, errors.New("RootRef is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
