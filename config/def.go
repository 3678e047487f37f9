package config

import (
	"encoding"
	"time"

	"github.com/Kindhearted57/sui-fuzzer/journal/fsjournal"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

// Default returns the default config
func Default() *Root {
	return &Root{
		Fuzzer: Fuzzer{
			Chain:               runner.Actor,
			Contract:            "vault",
			Module:              "vault",
			FuzzPrefix:          "fuzz_",
			Workers:             1,
			Seed:                0x5eed,
			MaxCallSequenceSize: 5,
			Intensity:           4,
			MaxInputSize:        1024,
			StatusInterval:      Duration(5 * time.Second),
		},
		Logging: Logging{
			SubsystemLevels: map[string]string{},
		},
		Journal: Journal{
			Path:       "~/.sui-fuzzer",
			MaxSize:    fsjournal.DefaultMaxSize,
			MaxBackups: fsjournal.DefaultMaxBackups,
		},
		Metrics: Metrics{
			Namespace: "fuzzer",
		},
	}
}

var _ encoding.TextMarshaler = (*Duration)(nil)
var _ encoding.TextUnmarshaler = (*Duration)(nil)

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
