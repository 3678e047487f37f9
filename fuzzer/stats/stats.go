package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/raulk/clock"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

// Stats holds the counters of a fuzzing session. It is created once, shared
// by every worker and never reset. Each update runs as a single critical
// section under lk.
type Stats struct {
	lk sync.RWMutex

	clock    clock.Clock
	start    time.Time
	lastTick time.Time

	crashes          uint64
	uniqueCrashes    uint64
	execs            uint64
	execsPerSec      uint64
	coverageSize     uint64
	secsSinceLastCov uint64

	// function name -> highest gas observed on a successful call
	gas map[string]uint64
}

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	Crashes          uint64
	UniqueCrashes    uint64
	Execs            uint64
	ExecsPerSec      uint64
	CoverageSize     uint64
	SecsSinceLastCov uint64
	TimeRunning      time.Duration
	Gas              map[string]uint64
}

func New(clk clock.Clock) *Stats {
	if clk == nil {
		clk = clock.New()
	}
	now := clk.Now()
	return &Stats{
		clock:    clk,
		start:    now,
		lastTick: now,
		gas:      make(map[string]uint64),
	}
}

func functionKey(fn types.Value) string {
	f, ok := types.AsFunction(fn)
	if !ok {
		panic(fmt.Sprintf("gas table key must be a function, got %v", fn))
	}
	return f.Name
}

// UpdateGasUsage raises the recorded maximum for fn to gas if gas is higher.
// fn must be a *types.Function.
func (s *Stats) UpdateGasUsage(fn types.Value, gas uint64) {
	key := functionKey(fn)

	s.lk.Lock()
	defer s.lk.Unlock()
	if cur, ok := s.gas[key]; !ok || gas > cur {
		s.gas[key] = gas
	}
}

// MaxGas returns the highest gas recorded for fn, or 0. fn must be a
// *types.Function.
func (s *Stats) MaxGas(fn types.Value) uint64 {
	key := functionKey(fn)

	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.gas[key]
}

// RecordExec counts one execution. At most once per second of wall time it
// also recomputes the throughput over the whole session and advances the
// seconds since the last coverage increase.
func (s *Stats) RecordExec() {
	now := s.clock.Now()

	s.lk.Lock()
	defer s.lk.Unlock()
	s.execs++
	if now.Sub(s.lastTick) < time.Second {
		return
	}
	s.lastTick = now
	s.secsSinceLastCov++
	if secs := uint64(now.Sub(s.start) / time.Second); secs > 0 {
		s.execsPerSec = s.execs / secs
	}
}

func (s *Stats) RecordCrash() {
	s.lk.Lock()
	s.crashes++
	s.lk.Unlock()
}

func (s *Stats) RecordUniqueCrash() {
	s.lk.Lock()
	s.uniqueCrashes++
	s.lk.Unlock()
}

// UpdateCoverage records a coverage size reported by a backend. Growth
// resets the seconds since the last coverage increase.
func (s *Stats) UpdateCoverage(size uint64) {
	s.lk.Lock()
	defer s.lk.Unlock()
	if size > s.coverageSize {
		s.coverageSize = size
		s.secsSinceLastCov = 0
	}
}

func (s *Stats) Snapshot() Snapshot {
	now := s.clock.Now()

	s.lk.RLock()
	defer s.lk.RUnlock()
	gas := make(map[string]uint64, len(s.gas))
	for k, v := range s.gas {
		gas[k] = v
	}
	return Snapshot{
		Crashes:          s.crashes,
		UniqueCrashes:    s.uniqueCrashes,
		Execs:            s.execs,
		ExecsPerSec:      s.execsPerSec,
		CoverageSize:     s.coverageSize,
		SecsSinceLastCov: s.secsSinceLastCov,
		TimeRunning:      now.Sub(s.start),
		Gas:              gas,
	}
}
