package crypto

import (
	"crypto/sha256"
	"math/big"
	"strconv"
	"sync"

	"github.com/antiyro/starkroot/core/felt"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
)

const (
	poseidonFullRounds    = 8
	poseidonPartialRounds = 83
)

var (
	roundKeysOnce sync.Once
	roundKeys     [][]fp.Element

	poseidonOne = *new(felt.Felt).SetUint64(1)
	poseidonTwo = *new(felt.Felt).SetUint64(2)
)

// poseidonRoundKeys lazily generates the Hades round constants. Key i is
// sha256("Hades" || i) reduced modulo the field prime, the scheme used by the
// [reference implementation].
//
// [reference implementation]: https://github.com/starkware-industries/poseidon
func poseidonRoundKeys() [][]fp.Element {
	roundKeysOnce.Do(func() {
		index := 0
		roundKeys = make([][]fp.Element, poseidonFullRounds+poseidonPartialRounds)
		for r := range roundKeys {
			keys := make([]fp.Element, 3)
			for i := range keys {
				digest := sha256.Sum256([]byte("Hades" + strconv.Itoa(index)))
				keys[i].SetBigInt(new(big.Int).SetBytes(digest[:]))
				index++
			}
			roundKeys[r] = keys
		}
	})
	return roundKeys
}

func cube(e *fp.Element) {
	var square fp.Element
	square.Square(e)
	e.Mul(e, &square)
}

// hadesRound applies one round of the Hades permutation: add the round keys,
// cube every state element (full round) or just the last one (partial round),
// then multiply the state with the MDS matrix [[3,1,1],[1,-1,1],[1,1,-2]].
func hadesRound(state []felt.Felt, full bool, keys []fp.Element) {
	for i := range state {
		state[i].Impl().Add(state[i].Impl(), &keys[i])
	}

	if full {
		for i := range state {
			cube(state[i].Impl())
		}
	} else {
		cube(state[2].Impl())
	}

	var t fp.Element
	t.Add(state[0].Impl(), state[1].Impl())
	t.Add(&t, state[2].Impl())

	var scaled fp.Element
	scaled.Double(state[0].Impl())
	state[0].Impl().Add(&t, &scaled)

	scaled.Double(state[1].Impl())
	state[1].Impl().Sub(&t, &scaled)

	scaled.Double(state[2].Impl())
	scaled.Add(&scaled, state[2].Impl())
	state[2].Impl().Sub(&t, &scaled)
}

// hadesPermutation runs the full permutation: half of the full rounds, all
// partial rounds, then the remaining full rounds.
func hadesPermutation(state []felt.Felt) {
	keys := poseidonRoundKeys()
	round := 0
	for ; round < poseidonFullRounds/2; round++ {
		hadesRound(state, true, keys[round])
	}
	for ; round < poseidonFullRounds/2+poseidonPartialRounds; round++ {
		hadesRound(state, false, keys[round])
	}
	for ; round < poseidonFullRounds+poseidonPartialRounds; round++ {
		hadesRound(state, true, keys[round])
	}
}

// Poseidon implements the two element [Poseidon hash].
//
// [Poseidon hash]: https://docs.starknet.io/documentation/develop/Hashing/hash-functions/#poseidon_hash
func Poseidon(x, y *felt.Felt) *felt.Felt {
	state := []felt.Felt{*x, *y, poseidonTwo}
	hadesPermutation(state)
	return new(felt.Felt).Set(&state[0])
}

// PoseidonArray implements [Poseidon array hashing].
//
// [Poseidon array hashing]: https://docs.starknet.io/documentation/develop/Hashing/hash-functions/#poseidon_array_hash
func PoseidonArray(elems ...*felt.Felt) *felt.Felt {
	var digest PoseidonDigest
	return digest.Update(elems...).Finish()
}

var _ Digest = (*PoseidonDigest)(nil)

// PoseidonDigest is a rate two sponge over the Hades permutation. Elements
// are absorbed in pairs; Finish applies the padding rule, a single 1 after
// the input, and squeezes the first state element.
type PoseidonDigest struct {
	state      [3]felt.Felt
	pending    felt.Felt
	hasPending bool
}

func (d *PoseidonDigest) Update(elems ...*felt.Felt) Digest {
	for idx := range elems {
		if !d.hasPending {
			d.pending.Set(elems[idx])
			d.hasPending = true
			continue
		}

		d.state[0].Add(&d.state[0], &d.pending)
		d.state[1].Add(&d.state[1], elems[idx])
		hadesPermutation(d.state[:])
		d.hasPending = false
	}
	return d
}

func (d *PoseidonDigest) Finish() *felt.Felt {
	if d.hasPending {
		d.state[0].Add(&d.state[0], &d.pending)
		d.state[1].Add(&d.state[1], &poseidonOne)
	} else {
		d.state[0].Add(&d.state[0], &poseidonOne)
	}
	hadesPermutation(d.state[:])
	return new(felt.Felt).Set(&d.state[0])
}
