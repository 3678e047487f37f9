package config

import (
	"bytes"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"
)

// EnvPrefix prefixes environment overrides, e.g. FUZZER_FUZZER_WORKERS=8.
const EnvPrefix = "FUZZER"

// FromFile loads config from a specified file overriding defaults specified
// in def. A missing file yields def with environment overrides applied.
func FromFile(path string, def *Root) (*Root, error) {
	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		return FromEnv(def)
	case err != nil:
		return nil, err
	}

	defer file.Close() //nolint:errcheck // The file is RO
	return FromReader(file, def)
}

// FromReader loads config from a reader instance.
func FromReader(reader io.Reader, def *Root) (*Root, error) {
	cfg := def.clone()
	_, err := toml.NewDecoder(reader).Decode(cfg)
	if err != nil {
		return nil, xerrors.Errorf("decoding config: %w", err)
	}
	return FromEnv(cfg)
}

// FromEnv applies environment overrides to a copy of cfg.
func FromEnv(cfg *Root) (*Root, error) {
	out := cfg.clone()
	if err := envconfig.Process(EnvPrefix, out); err != nil {
		return nil, xerrors.Errorf("processing env vars overrides: %s", err)
	}
	return out, nil
}

// clone copies r so that decoding into the copy leaves r untouched.
func (r *Root) clone() *Root {
	out := *r
	out.Fuzzer.TargetFunctions = slices.Clone(r.Fuzzer.TargetFunctions)
	out.Logging.SubsystemLevels = maps.Clone(r.Logging.SubsystemLevels)
	out.Journal.DisabledEvents = slices.Clone(r.Journal.DisabledEvents)
	return &out
}

// ConfigComment encodes cfg as TOML.
func ConfigComment(cfg *Root) ([]byte, error) {
	buf := new(bytes.Buffer)
	e := toml.NewEncoder(buf)
	if err := e.Encode(cfg); err != nil {
		return nil, xerrors.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}
