package crypto

import (
	"github.com/antiyro/starkroot/core/felt"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	pedersenhash "github.com/consensys/gnark-crypto/ecc/stark-curve/pedersen-hash"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PedersenArray implements [Pedersen array hashing].
//
// [Pedersen array hashing]: https://docs.starknet.io/documentation/develop/Hashing/hash-functions/#array_hashing
func PedersenArray(elems ...*felt.Felt) *felt.Felt {
	var digest PedersenDigest
	return digest.Update(elems...).Finish()
}

type pedersenCacheKey struct {
	x, y felt.Felt
}

var (
	pedersenCache *lru.Cache

	pedersenCacheCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pedersen",
		Name:      "cache",
		Help:      "Pedersen cache hits and misses.",
	}, []string{"hit"})
)

// EnablePedersenCache installs a process-wide LRU cache that Pedersen
// consults before computing. Sibling pairs repeat often while tries are
// rebuilt, so memoising the pair hash trades memory for curve operations.
// Must be called before hashing starts on other goroutines.
func EnablePedersenCache(size int) error {
	cache, err := lru.New(size)
	if err != nil {
		return err
	}
	pedersenCache = cache
	return nil
}

// Pedersen implements the [Pedersen hash].
//
// [Pedersen hash]: https://docs.starknet.io/documentation/develop/Hashing/hash-functions/#pedersen_hash
func Pedersen(a, b *felt.Felt) *felt.Felt {
	if pedersenCache == nil {
		hash := pedersenhash.Pedersen(a.Impl(), b.Impl())
		return felt.NewFelt(&hash)
	}

	// callers are free to mutate the returned felt, so the cached copy is
	// never handed out directly
	key := pedersenCacheKey{x: *a, y: *b}
	if cached, ok := pedersenCache.Get(key); ok {
		pedersenCacheCounter.WithLabelValues("true").Inc()
		hash := *cached.(*felt.Felt)
		return &hash
	}

	hash := pedersenhash.Pedersen(a.Impl(), b.Impl())
	cached := felt.NewFelt(&hash)
	pedersenCache.Add(key, cached)
	pedersenCacheCounter.WithLabelValues("false").Inc()
	result := *cached
	return &result
}

var _ Digest = (*PedersenDigest)(nil)

type PedersenDigest struct {
	digest fp.Element
	count  uint64
}

func (d *PedersenDigest) Update(elems ...*felt.Felt) Digest {
	for idx := range elems {
		d.digest = pedersenhash.Pedersen(&d.digest, elems[idx].Impl())
	}
	d.count += uint64(len(elems))
	return d
}

func (d *PedersenDigest) Finish() *felt.Felt {
	d.digest = pedersenhash.Pedersen(&d.digest, new(fp.Element).SetUint64(d.count))
	return felt.NewFelt(&d.digest)
}
