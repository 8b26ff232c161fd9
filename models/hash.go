package models

import (
	"encoding/binary"
	"fmt"
)

// Hash is a 128-bit content fingerprint. The zero value is the
// distinguished "absent" hash.
type Hash struct {
	Lo, Hi uint64
}

func (h Hash) IsZero() bool {
	return h.Lo == 0 && h.Hi == 0
}

func (h Hash) String() string {
	return fmt.Sprintf("[0x%016x 0x%016x]", h.Lo, h.Hi)
}

// HashFromBytes builds a Hash from the first 16 bytes of b.
func HashFromBytes(b []byte) Hash {
	var tmp [16]byte
	copy(tmp[:], b)
	return Hash{
		Lo: binary.LittleEndian.Uint64(tmp[:8]),
		Hi: binary.LittleEndian.Uint64(tmp[8:]),
	}
}
