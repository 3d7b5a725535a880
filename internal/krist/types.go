// Package krist defines the core Krist mining value types: targets,
// solutions and the 48-bit proof-of-work score.
package krist

import (
	"crypto/sha256"
	"fmt"

	"github.com/bardlex/kristforge/pkg/errors"
)

const (
	// AddressLength is the length of a Krist address in bytes
	AddressLength = 10
	// BlockLength is the length of a short block hash in bytes
	BlockLength = 12
	// NonceLength is the length of a mining nonce in bytes
	NonceLength = 12
	// PrefixLength is the length of a miner nonce prefix in bytes
	PrefixLength = 2
)

// Target is the current mining target: the short hash of the previous block
// and the work threshold a solution's score must stay under.
type Target struct {
	PrevBlock string
	Work      int64
}

// NewTarget creates a Target, validating the previous block hash length
func NewTarget(prevBlock string, work int64) (Target, error) {
	if len(prevBlock) != BlockLength {
		return Target{}, errors.New(errors.ErrorTypeValidation, "new_target",
			fmt.Sprintf("previous block length must equal %d, got %d", BlockLength, len(prevBlock)))
	}
	if work <= 0 {
		return Target{}, errors.New(errors.ErrorTypeValidation, "new_target",
			fmt.Sprintf("work must be positive, got %d", work))
	}
	return Target{PrevBlock: prevBlock, Work: work}, nil
}

// String implements fmt.Stringer
func (t Target) String() string {
	return fmt.Sprintf("Target (block %s work %d)", t.PrevBlock, t.Work)
}

// Solution is a nonce found for a specific target
type Solution struct {
	Target  Target
	Address string
	Nonce   string
}

// String implements fmt.Stringer
func (s Solution) String() string {
	return fmt.Sprintf("Solution (address %s nonce %s %s)", s.Address, s.Nonce, s.Target)
}

// Valid reports whether the solution's nonce actually beats its target when
// recomputed host-side.
func (s Solution) Valid() bool {
	return Score(Digest(s.Address+s.Target.PrevBlock+s.Nonce)) < s.Target.Work
}

// ValidateAddress checks that an address has the required length
func ValidateAddress(address string) error {
	if len(address) != AddressLength {
		return errors.New(errors.ErrorTypeValidation, "validate_address",
			fmt.Sprintf("address length must be %d, got %d", AddressLength, len(address)))
	}
	return nil
}

// Score interprets the first 6 bytes of a hash as a big-endian 48-bit integer.
// A nonce solves a target iff Score(hash) < target.Work.
func Score(hash []byte) int64 {
	return int64(hash[5]) |
		int64(hash[4])<<8 |
		int64(hash[3])<<16 |
		int64(hash[2])<<24 |
		int64(hash[1])<<32 |
		int64(hash[0])<<40
}

// Digest returns the SHA-256 digest of the given string
func Digest(data string) []byte {
	sum := sha256.Sum256([]byte(data))
	return sum[:]
}

const hexDigits = "0123456789abcdef"

// ToHex converts binary data to its lowercase hex representation
func ToHex(data []byte) string {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, hexDigits[b>>4], hexDigits[b&0xf])
	}
	return string(out)
}

// FromHex converts a lowercase hex string back to binary data
func FromHex(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "from_hex", "odd length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi := hexNibble(s[2*i])
		lo := hexNibble(s[2*i+1])
		if hi < 0 || lo < 0 {
			return nil, errors.New(errors.ErrorTypeValidation, "from_hex",
				fmt.Sprintf("invalid hex digit at offset %d", 2*i))
		}
		out[i] = byte(hi<<4 | lo)
	}
	return out, nil
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}

// Sha256Hex computes the SHA-256 of a string and returns the lowercase hex digest
func Sha256Hex(data string) string {
	return ToHex(Digest(data))
}
