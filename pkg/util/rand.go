package util

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand/v2"
)

// NewSeed returns a random 128-bit seed for keyed hashing. Drawn from the
// OS entropy source so specially crafted keys cannot degrade table chains.
func NewSeed() [16]byte {
	var s [16]byte
	if _, err := rand.Read(s[:]); err != nil {
		panic(err) // Very little we can do here.
	}
	return s
}

// NewSource returns a deterministic uniform 64-bit source derived from seed.
// Used by tests and by hosts that want reproducible sampling.
func NewSource(seed [16]byte) func() uint64 {
	k0 := binary.LittleEndian.Uint64(seed[:8])
	k1 := binary.LittleEndian.Uint64(seed[8:])
	return mathrand.NewPCG(k0, k1).Uint64
}
