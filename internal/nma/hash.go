package nma

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainIntegration = "mlnmr/integration/v1"
	DomainModel       = "mlnmr/model/v1"
)

// ContentHash computes SHA256(domain + 0x00 + encoding(parts)). Parts are
// encoded with a type tag and fixed-width little-endian numbers so the
// hash is stable across platforms. Floats are hashed by their bit pattern.
func ContentHash(domain string, parts ...any) (string, error) {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})

	var buf [8]byte
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putString := func(s string) {
		putU64(uint64(len(s)))
		h.Write([]byte(s))
	}

	for i, p := range parts {
		switch v := p.(type) {
		case string:
			h.Write([]byte{'s'})
			putString(v)
		case []string:
			h.Write([]byte{'S'})
			putU64(uint64(len(v)))
			for _, s := range v {
				putString(s)
			}
		case int:
			h.Write([]byte{'i'})
			putU64(uint64(int64(v)))
		case uint64:
			h.Write([]byte{'u'})
			putU64(v)
		case float64:
			h.Write([]byte{'f'})
			putU64(math.Float64bits(v))
		case []float64:
			h.Write([]byte{'F'})
			putU64(uint64(len(v)))
			for _, f := range v {
				putU64(math.Float64bits(f))
			}
		case bool:
			if v {
				h.Write([]byte{'t'})
			} else {
				h.Write([]byte{'b'})
			}
		default:
			return "", fmt.Errorf("ContentHash: part %d: unsupported type %T", i, p)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
