package xychain

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/xychain/xy-e2e/internal/convert"
)

// Hasher is a Substrate storage map hasher.
type Hasher int

const (
	Blake2_128Concat Hasher = iota
	Twox64Concat
	IdentityHasher
)

func xxHash64(data []byte, seed uint64) uint64 {
	d := xxhash.NewWithSeed(seed)
	_, _ = d.Write(data)
	return d.Sum64()
}

// TwoX128 concatenates xxHash64 with seeds 0 and 1, little endian. It is the
// hasher for pallet and storage item prefixes.
//
//	TwoX128([]byte("System")) == 0x26aa394eea5630e07c48ae0c9558cef7
func TwoX128(data []byte) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[0:8], xxHash64(data, 0))
	binary.LittleEndian.PutUint64(out[8:16], xxHash64(data, 1))
	return out
}

// HashKey applies h to an already SCALE-encoded map key.
func (h Hasher) HashKey(key []byte) []byte {
	switch h {
	case Twox64Concat:
		out := make([]byte, 8, 8+len(key))
		binary.LittleEndian.PutUint64(out, xxHash64(key, 0))
		return append(out, key...)
	case IdentityHasher:
		return append([]byte(nil), key...)
	default:
		sum, _ := blake2b.New(16, nil) // only fails for keys longer than 64 bytes
		sum.Write(key)
		return append(sum.Sum(nil), key...)
	}
}

// StorageValueKey is the key of a plain storage value:
//
//	TwoX128(pallet) ++ TwoX128(item)
func StorageValueKey(pallet, item string) string {
	return convert.BytesToHex(storagePrefix(pallet, item))
}

// StorageMapKey is the key of one map entry:
//
//	TwoX128(pallet) ++ TwoX128(item) ++ hasher(key)
//
// key must already be SCALE encoded (a u32 id is 4 little endian bytes, an
// AccountId its 32 raw bytes).
func StorageMapKey(pallet, item string, h Hasher, key []byte) string {
	full := append(storagePrefix(pallet, item), h.HashKey(key)...)
	return convert.BytesToHex(full)
}

func storagePrefix(pallet, item string) []byte {
	return append(TwoX128([]byte(pallet)), TwoX128([]byte(item))...)
}

func u32Key(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
