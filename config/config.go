// Package config loads this worker's local configuration: the sealed
// history path, tokenomic parameters, the pruntime version, and listen
// addresses (the heartbeat tolerance window is the fixed constant
// gatekeeper.HeartbeatToleranceWindow, not a config field), grounded on the teacher's own TOML-based node config
// (cmd/kcn/config.go, node/cn/config.go) — same library, same
// flat-struct-plus-file shape.
package config

import (
	"os"
	"reflect"

	"github.com/naoina/toml"

	"github.com/ccworker/pruntime-core/errs"
	"github.com/ccworker/pruntime-core/gatekeeper"
)

// Config is the worker process's local configuration file shape.
type Config struct {
	SealedHistoryPath string
	ListenAddr        string
	MetricsAddr       string

	Tokenomic gatekeeper.Params

	PRuntimeVersion struct {
		Major uint32
		Minor uint32
		Patch uint32
	}
}

// Default returns the built-in configuration used when no config file is
// supplied, mirroring the teacher's cn.DefaultConfig pattern.
func Default() *Config {
	return &Config{
		SealedHistoryPath: "./data/history.sealed",
		ListenAddr:        ":8000",
		MetricsAddr:       ":9090",
		Tokenomic:         gatekeeper.DefaultParams(),
	}
}

// tomlSettings keeps TOML keys matched to Go struct field names verbatim,
// the same override the teacher applies in cmd/utils/nodecmd/dumpconfigcmd.go.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Load reads and decodes a TOML config file at path, falling back to
// Default() field-by-field for anything the file omits (naoina/toml
// leaves untouched fields at their zero value, so Load starts from
// Default() and decodes on top of it).
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.UnknownError, err, "config: open "+path)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(f).Decode(cfg); err != nil {
		return nil, errs.Wrap(errs.UnknownError, err, "config: decode "+path)
	}
	return cfg, nil
}
