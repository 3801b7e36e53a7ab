// Package audit links an issue's log entries into a tamper-evident hash
// chain. Each entry's hash covers its predecessor's hash and the entry's own
// deterministic encoding, so rewriting or dropping any earlier entry breaks
// every later link.
package audit

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/joescharf/issuedao/internal/codec"
	"github.com/joescharf/issuedao/internal/models"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

// logDomainKey separates audit hashes from any other BLAKE3 use. ASCII
// "issuedao.audit.log", zero-padded to 32 bytes.
var logDomainKey = [32]byte{
	'i', 's', 's', 'u', 'e', 'd', 'a', 'o', '.', 'a', 'u', 'd', 'i', 't', '.', 'l',
	'o', 'g', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// ParseHash decodes a hex digest. The empty string is the zero hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if s == "" {
		return h, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash: %w", err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("hash has %d bytes, want %d", len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}

// Seal computes the hash of entry chained onto prev. The entry's own Hash
// field is excluded from the input.
func Seal(prev Hash, entry models.Log) (Hash, error) {
	entry.Hash = ""
	body, err := codec.Marshal(entry)
	if err != nil {
		return Hash{}, fmt.Errorf("encode log: %w", err)
	}

	hasher, err := blake3.NewKeyed(logDomainKey[:])
	if err != nil {
		return Hash{}, fmt.Errorf("init hasher: %w", err)
	}
	_, _ = hasher.Write(prev[:])
	_, _ = hasher.Write(body)

	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out, nil
}

// BrokenLinkError reports the first entry whose stored hash does not match.
type BrokenLinkError struct {
	Index int
	Want  string
	Got   string
}

func (e *BrokenLinkError) Error() string {
	return fmt.Sprintf("audit chain broken at log %d: stored %s, computed %s", e.Index, e.Got, e.Want)
}

// Verify recomputes the chain over logs in order. It returns a
// *BrokenLinkError for the first mismatching entry.
func Verify(logs []*models.Log) error {
	var prev Hash
	for i, l := range logs {
		want, err := Seal(prev, *l)
		if err != nil {
			return err
		}
		if want.String() != l.Hash {
			return &BrokenLinkError{Index: i, Want: want.String(), Got: l.Hash}
		}
		prev = want
	}
	return nil
}

// Head returns the hash of the last entry, or the zero hash when logs is empty.
func Head(logs []*models.Log) (Hash, error) {
	if len(logs) == 0 {
		return Hash{}, nil
	}
	return ParseHash(logs[len(logs)-1].Hash)
}
