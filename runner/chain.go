package runner

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/xerrors"
)

// Chain selects the execution backend.
type Chain int

const (
	ChainUnknown Chain = iota
	Sui
	Aptos
	Actor
	EVM
)

var chainNames = map[Chain]string{
	Sui:   "sui",
	Aptos: "aptos",
	Actor: "actor",
	EVM:   "evm",
}

func (c Chain) String() string {
	if n, ok := chainNames[c]; ok {
		return n
	}
	return "unknown"
}

// SupportedChains lists every chain the fuzzer knows about, whether or not a
// backend is registered for it.
func SupportedChains() []Chain {
	return []Chain{Sui, Aptos, Actor, EVM}
}

func ParseChain(s string) (Chain, error) {
	for c, n := range chainNames {
		if strings.EqualFold(n, s) {
			return c, nil
		}
	}
	return ChainUnknown, xerrors.Errorf("unknown chain %q", s)
}

func (c Chain) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Chain) UnmarshalText(text []byte) error {
	parsed, err := ParseChain(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Target identifies what a backend should load.
type Target struct {
	// Contract locates the target: a built-in actor name or an artifact path,
	// depending on the backend.
	Contract string
	// Module is the module within the contract holding the entry points.
	Module string
}

// Backend opens runners for one chain. Every worker gets its own runner.
type Backend interface {
	Open(ctx context.Context, target Target) (StatefulRunner, SignatureSource, error)
}

// ErrUnsupportedChain is returned by Lookup for chains with no registered
// backend.
var ErrUnsupportedChain = xerrors.New("no execution backend registered for chain")

var (
	registryLk sync.RWMutex
	registry   = map[Chain]Backend{}
)

// Register makes a backend available for chain. Backends register
// themselves from init functions; registering a chain twice panics.
func Register(chain Chain, b Backend) {
	registryLk.Lock()
	defer registryLk.Unlock()
	if _, dup := registry[chain]; dup {
		panic("runner: backend registered twice for " + chain.String())
	}
	registry[chain] = b
}

// Lookup resolves the backend for chain.
func Lookup(chain Chain) (Backend, error) {
	registryLk.RLock()
	defer registryLk.RUnlock()
	b, ok := registry[chain]
	if !ok {
		return nil, xerrors.Errorf("%s: %w", chain, ErrUnsupportedChain)
	}
	return b, nil
}

// Registered returns the chains with a backend, in declaration order.
func Registered() []Chain {
	registryLk.RLock()
	defer registryLk.RUnlock()
	out := make([]Chain, 0, len(registry))
	for c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
