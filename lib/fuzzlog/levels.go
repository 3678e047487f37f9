package fuzzlog

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
)

// SetupLogLevels sets the default levels for every subsystem. GOLOG_LOG_LEVEL
// takes precedence when set.
func SetupLogLevels() {
	if _, set := os.LookupEnv("GOLOG_LOG_LEVEL"); set {
		return
	}
	_ = logging.SetLogLevel("*", "INFO")
	_ = logging.SetLogLevel("mutator", "WARN")
	_ = logging.SetLogLevel("worker", "INFO")
	_ = logging.SetLogLevel("actorvm", "WARN")
	_ = logging.SetLogLevel("evm", "WARN")
}
