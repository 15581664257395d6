package trie

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/antiyro/starkroot/core/felt"
)

// Key is a fixed-capacity bit string keyed into the trie. The bits are stored
// big endian in the bitset, only the len least significant bits are in use.
type Key struct {
	len    uint8
	bitset [felt.Bytes]byte
}

func NewKey(length uint8, keyBytes []byte) Key {
	k := Key{len: length}
	if len(keyBytes) > len(k.bitset) {
		panic("bytes does not fit in bitset")
	}
	copy(k.bitset[len(k.bitset)-len(keyBytes):], keyBytes)
	return k
}

func (k *Key) bytesNeeded() uint {
	const byteBits = 8
	return (uint(k.len) + (byteBits - 1)) / byteBits
}

func (k *Key) inUseBytes() []byte {
	return k.bitset[len(k.bitset)-int(k.bytesNeeded()):]
}

func (k *Key) unusedBytes() []byte {
	return k.bitset[:len(k.bitset)-int(k.bytesNeeded())]
}

// WriteTo serialises the key as its length byte followed by the in-use bytes.
func (k *Key) WriteTo(buf *bytes.Buffer) (int64, error) {
	if err := buf.WriteByte(k.len); err != nil {
		return 0, err
	}

	n, err := buf.Write(k.inUseBytes())
	return int64(1 + n), err
}

// UnmarshalBinary deserialises a key from the [Key.WriteTo] encoding. Trailing
// bytes beyond [Key.EncodedLen] are ignored so keys can be decoded mid-buffer.
func (k *Key) UnmarshalBinary(data []byte) error {
	if len(data) < 1 {
		return errors.New("size of input data is less than 1")
	}
	k.len = data[0]
	if len(data) < int(k.bytesNeeded())+1 {
		return errors.New("size of input data is less than the encoded key length")
	}
	k.bitset = [felt.Bytes]byte{}
	copy(k.inUseBytes(), data[1:1+k.bytesNeeded()])
	return nil
}

func (k *Key) EncodedLen() uint {
	return k.bytesNeeded() + 1
}

func (k *Key) Len() uint8 {
	return k.len
}

func (k *Key) Felt() felt.Felt {
	var f felt.Felt
	f.SetBytes(k.bitset[:])
	return f
}

func (k *Key) Equal(other *Key) bool {
	if k == nil && other == nil {
		return true
	} else if k == nil || other == nil {
		return false
	}
	return k.len == other.len && k.bitset == other.bitset
}

// IsBitSet returns whether the bit at the given position is 1, counting from
// the least significant bit at position 0.
func (k *Key) IsBitSet(position uint8) bool {
	const lsb = uint8(0x1)
	byteIdx := position / 8
	byteAtIdx := k.bitset[len(k.bitset)-int(byteIdx)-1]
	bitIdx := position % 8
	return byteAtIdx&(lsb<<bitIdx) != 0
}

// ShiftRight drops the n least significant bits, shortening the key.
func (k *Key) ShiftRight(n uint8) {
	if k.len < n {
		n = k.len
	}

	var bigInt big.Int
	bigInt.SetBytes(k.bitset[:])
	bigInt.Rsh(&bigInt, uint(n))
	bigInt.FillBytes(k.bitset[:])
	k.len -= n
}

// Truncate keeps the length least significant bits and clears the rest.
func (k *Key) Truncate(length uint8) {
	k.len = length

	unusedBytes := k.unusedBytes()
	for idx := range unusedBytes {
		unusedBytes[idx] = 0
	}

	// clear the bits above the length cutoff on the most significant in-use byte
	if k.len%8 != 0 {
		inUseBytes := k.inUseBytes()
		unusedBitsCount := 8 - (k.len % 8)
		inUseBytes[0] = (inUseBytes[0] << unusedBitsCount) >> unusedBitsCount
	}
}

func (k *Key) String() string {
	return fmt.Sprintf("(%d) %s", k.len, hex.EncodeToString(k.bitset[:]))
}
