package crash

import (
	"sync"

	"github.com/hashicorp/golang-lru/arc/v2"
	"github.com/ipfs/go-cid"
	"golang.org/x/xerrors"
)

// Set holds the signatures of crashes one worker has already reported. It is
// not safe for concurrent use; every worker owns its own Set.
type Set struct {
	seen map[cid.Cid]struct{}
}

func NewSet() *Set {
	return &Set{seen: make(map[cid.Cid]struct{})}
}

// Add inserts the crash signature and reports whether it was new.
func (s *Set) Add(c *Crash) bool {
	sig := c.Signature()
	if _, ok := s.seen[sig]; ok {
		return false
	}
	s.seen[sig] = struct{}{}
	return true
}

func (s *Set) Contains(c *Crash) bool {
	_, ok := s.seen[c.Signature()]
	return ok
}

func (s *Set) Len() int {
	return len(s.seen)
}

// DefaultRegistrySize is the number of crash classes the cross-worker
// registry remembers.
const DefaultRegistrySize = 1 << 16

// Registry deduplicates crash signatures across workers. Workers report
// crashes they have not seen themselves; the registry filters the ones
// another worker already reported. It is bounded: a class evicted from the
// cache is reported again if it recurs.
type Registry struct {
	lk    sync.Mutex
	cache *arc.ARCCache[cid.Cid, struct{}]
}

func NewRegistry(size int) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	c, err := arc.NewARC[cid.Cid, struct{}](size)
	if err != nil {
		return nil, xerrors.Errorf("creating crash registry: %w", err)
	}
	return &Registry{cache: c}, nil
}

// Observe records sig and reports whether no worker had reported it before.
// Safe for concurrent use.
func (r *Registry) Observe(sig cid.Cid) bool {
	r.lk.Lock()
	defer r.lk.Unlock()

	if r.cache.Contains(sig) {
		// refresh recency so frequent classes stay cached
		r.cache.Get(sig)
		return false
	}
	r.cache.Add(sig, struct{}{})
	return true
}

func (r *Registry) Len() int {
	return r.cache.Len()
}
