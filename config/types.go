package config

import (
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

// // NOTE: ONLY PUT STRUCT DEFINITIONS IN THIS FILE

// Root is the fuzzer config file.
type Root struct {
	Fuzzer  Fuzzer
	Logging Logging
	Journal Journal
	Metrics Metrics
}

// Fuzzer configures the fuzzing session.
type Fuzzer struct {
	// Chain selects the execution backend: "actor" or "evm". "sui" and
	// "aptos" are recognized but have no backend in this build.
	Chain runner.Chain
	// Contract is the built-in actor name for the actor chain, or the path of
	// a compiled artifact for the evm chain.
	Contract string
	// Module holding the entry points. Optional for single-module targets.
	Module string
	// TargetFunctions are the entry points under test.
	TargetFunctions []string
	// FuzzPrefix selects auxiliary entry points mixed into every call
	// sequence. fuzz_init is never scheduled.
	FuzzPrefix string

	// Workers is the number of concurrent workers, each with its own target
	// instance.
	Workers int
	// Seed of worker i is Seed+i.
	Seed uint64
	// MaxCallSequenceSize bounds the extra calls appended to each sequence.
	MaxCallSequenceSize int
	// Intensity is the base number of mutation rounds per argument.
	Intensity int
	// MaxInputSize bounds mutated byte vectors.
	MaxInputSize int
	// BoundaryBias makes random picks favor the low end of their range.
	BoundaryBias bool

	// Timeout stops the session after this long. Zero runs until interrupted.
	Timeout Duration
	// StatusInterval is how often progress is reported.
	StatusInterval Duration
	// CrashCacheSize bounds the cross-worker crash class cache.
	CrashCacheSize int
}

// Logging is the logging system config
type Logging struct {
	// SubsystemLevels specify per-subsystem log levels
	SubsystemLevels map[string]string
}

type Journal struct {
	// Path is the directory holding the journal directory. Empty disables
	// the file journal.
	Path string
	// DisabledEvents lists system:event pairs that are not journaled.
	DisabledEvents []string
	// MaxSize is the size in bytes at which the journal file is rolled.
	MaxSize int64
	// MaxBackups is the number of rolled files to keep.
	MaxBackups int
}

type Metrics struct {
	// ListenAddress serves Prometheus metrics when set, e.g. 127.0.0.1:9464.
	ListenAddress string
	Namespace     string
}
