package mining

import (
	"bytes"
	"fmt"

	cl "github.com/CyberChainXyz/go-opencl"

	"github.com/bardlex/kristforge/internal/krist"
	"github.com/bardlex/kristforge/pkg/errors"
)

// testInputLength is the length of each canned self-test input
const testInputLength = 3

// testAlphabet yields the 16 canned self-test inputs: consecutive letter
// triplets running from "abc" through "TUV"
const testAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUV"

// testInputs returns the 16 canned 3-byte inputs used by the GPU self-tests
func testInputs() []string {
	inputs := make([]string, 0, len(testAlphabet)/testInputLength)
	for i := 0; i+testInputLength <= len(testAlphabet); i += testInputLength {
		inputs = append(inputs, testAlphabet[i:i+testInputLength])
	}
	return inputs
}

// interleave packs per-lane inputs into a single buffer of stride bytes per
// lane, placing byte j of lane i at position vecsize*j + i
func interleave(inputs []string, vecsize, stride int) []byte {
	out := make([]byte, vecsize*stride)
	for lane, input := range inputs {
		for j := 0; j < len(input); j++ {
			out[vecsize*j+lane] = input[j]
		}
	}
	return out
}

// deinterleave extracts lane i from an interleaved buffer of stride bytes
// per lane
func deinterleave(buf []byte, lane, vecsize, stride int) []byte {
	out := make([]byte, stride)
	for j := 0; j < stride; j++ {
		out[j] = buf[vecsize*j+lane]
	}
	return out
}

// RunTests lazily builds the program and verifies the GPU SHA-256 and score
// kernels against the host reference over the 16 canned inputs. A mismatch
// aborts with a self-test error carrying the input, expected and got values.
func (m *Miner) RunTests() error {
	if err := m.ensureBuilt(); err != nil {
		return err
	}

	inBuf, err := m.runner.CreateEmptyBuffer(cl.READ_ONLY, 64*m.vecsize)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "create_buffer", "test input buffer")
	}
	hashBuf, err := m.runner.CreateEmptyBuffer(cl.READ_WRITE, 32*m.vecsize)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "create_buffer", "test hash buffer")
	}
	scoreBuf, err := m.runner.CreateEmptyBuffer(cl.WRITE_ONLY, 8*m.vecsize)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "create_buffer", "test score buffer")
	}

	inputs := testInputs()
	for start := 0; start < len(inputs); start += m.vecsize {
		group := inputs[start : start+m.vecsize]

		if err := m.testDigestGroup(group, inBuf, hashBuf); err != nil {
			return err
		}
		if err := m.testScoreGroup(group, hashBuf, scoreBuf); err != nil {
			return err
		}
	}

	m.logger.Info("self-tests passed", "inputs", len(inputs))
	return nil
}

// testDigestGroup runs testDigest55 over one lane group and compares each
// lane's digest with the host SHA-256
func (m *Miner) testDigestGroup(group []string, inBuf, hashBuf *cl.Buffer) error {
	data := interleave(group, m.vecsize, 64)
	if err := cl.WriteBuffer(m.runner, 0, inBuf, data, true); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "write_buffer", "test input")
	}

	length := int32(testInputLength)
	params := []cl.KernelParam{
		cl.BufferParam(inBuf),
		cl.Param(&length),
		cl.BufferParam(hashBuf),
	}

	if err := m.runner.RunKernel("testDigest55", 1, nil, []uint64{1}, nil, params, true); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "run_kernel", "testDigest55 dispatch failed")
	}

	hashes := make([]byte, 32*m.vecsize)
	if err := cl.ReadBuffer(m.runner, 0, hashBuf, hashes); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "read_buffer", "test hashes")
	}

	for lane, input := range group {
		got := deinterleave(hashes, lane, m.vecsize, 32)
		expected := krist.Digest(input)
		if !bytes.Equal(got, expected) {
			return errors.New(errors.ErrorTypeSelfTest, "test_digest",
				fmt.Sprintf("GPU SHA-256 disagrees with host for input %q", input)).
				WithContext("input", input).
				WithContext("expected", krist.ToHex(expected)).
				WithContext("got", krist.ToHex(got))
		}
	}

	return nil
}

// testScoreGroup runs testScore over the hashes already on the device and
// compares each lane's score with the host reference
func (m *Miner) testScoreGroup(group []string, hashBuf, scoreBuf *cl.Buffer) error {
	params := []cl.KernelParam{
		cl.BufferParam(hashBuf),
		cl.BufferParam(scoreBuf),
	}

	if err := m.runner.RunKernel("testScore", 1, nil, []uint64{1}, nil, params, true); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "run_kernel", "testScore dispatch failed")
	}

	scores := make([]int64, m.vecsize)
	if err := cl.ReadBuffer(m.runner, 0, scoreBuf, scores); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "read_buffer", "test scores")
	}

	for lane, input := range group {
		expected := krist.Score(krist.Digest(input))
		if scores[lane] != expected {
			return errors.New(errors.ErrorTypeSelfTest, "test_score",
				fmt.Sprintf("GPU score disagrees with host for input %q", input)).
				WithContext("input", input).
				WithContext("expected", expected).
				WithContext("got", scores[lane])
		}
	}

	return nil
}
