package heavy

import "encoding/binary"

const (
	hashM = 0x5bd1e995
	hashR = 24
)

// StringToHash returns the receiver hash Heavy uses for name.
// MurmurHash2 with the string length as seed, little-endian words.
func StringToHash(name string) uint32 {
	b := []byte(name)
	n := len(b)
	x := uint32(n)

	for len(b) >= 4 {
		k := binary.LittleEndian.Uint32(b)
		k *= hashM
		k ^= k >> hashR
		k *= hashM
		x *= hashM
		x ^= k
		b = b[4:]
	}

	switch len(b) {
	case 3:
		x ^= uint32(b[2]) << 16
		fallthrough
	case 2:
		x ^= uint32(b[1]) << 8
		fallthrough
	case 1:
		x ^= uint32(b[0])
		x *= hashM
	}

	x ^= x >> 13
	x *= hashM
	x ^= x >> 15
	return x
}
