package mining

import (
	"fmt"

	"github.com/bardlex/kristforge/internal/krist"
	"github.com/bardlex/kristforge/pkg/errors"
)

// Options holds per-miner configuration. Worksize and Vecsize of zero mean
// "use the device default".
type Options struct {
	// Prefix is the 2-character nonce prefix distinguishing miners that
	// share an address
	Prefix string

	// Worksize is the global work size per kernel dispatch
	Worksize int

	// Vecsize is the SIMD lane count per kernel invocation
	Vecsize int

	// ExtraCompilerOpts is appended to the OpenCL compiler arguments
	ExtraCompilerOpts string
}

// NewOptions validates and returns miner options
func NewOptions(prefix string, worksize, vecsize int, extraOpts string) (Options, error) {
	if len(prefix) != krist.PrefixLength {
		return Options{}, errors.New(errors.ErrorTypeValidation, "new_options",
			fmt.Sprintf("prefix length must be %d, got %d", krist.PrefixLength, len(prefix)))
	}

	if !validVecsize(vecsize) {
		return Options{}, errors.New(errors.ErrorTypeValidation, "new_options",
			fmt.Sprintf("invalid vector size %d (must be 1, 2, 4, 8 or 16)", vecsize))
	}

	if worksize < 0 {
		return Options{}, errors.New(errors.ErrorTypeValidation, "new_options",
			fmt.Sprintf("worksize must not be negative, got %d", worksize))
	}

	return Options{
		Prefix:            prefix,
		Worksize:          worksize,
		Vecsize:           vecsize,
		ExtraCompilerOpts: extraOpts,
	}, nil
}

// validVecsize reports whether v is an allowed SIMD lane count. Zero is
// allowed and means "device default".
func validVecsize(v int) bool {
	switch v {
	case 0, 1, 2, 4, 8, 16:
		return true
	default:
		return false
	}
}
