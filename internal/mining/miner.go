// Package mining implements the per-device OpenCL mining loop. Each Miner
// exclusively owns its device runner and buffers; all cross-thread
// coordination goes through the shared state.
package mining

import (
	_ "embed"
	"fmt"

	cl "github.com/CyberChainXyz/go-opencl"

	"github.com/bardlex/kristforge/internal/device"
	"github.com/bardlex/kristforge/internal/krist"
	"github.com/bardlex/kristforge/internal/state"
	"github.com/bardlex/kristforge/pkg/errors"
	"github.com/bardlex/kristforge/pkg/log"
)

//go:embed kernel.cl
var kernelSource string

// kernelNames are the entry points the embedded program exposes
var kernelNames = []string{"testDigest55", "testScore", "kristMiner"}

// solutionBufSize is the size of the device solution buffer. The kernel
// writes at most 15 bytes; a Krist nonce is the first 12.
const solutionBufSize = 15

// Miner drives a single OpenCL device
type Miner struct {
	dev    *cl.OpenCLDevice
	runner *cl.OpenCLRunner
	opts   Options
	logger *log.Logger

	vecsize  int
	worksize int
	built    bool
}

// New constructs a miner for the given device. The kernel program is not
// compiled until first use.
func New(dev *cl.OpenCLDevice, opts Options, logger *log.Logger) (*Miner, error) {
	runner, err := dev.InitRunner()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDevice, "init_runner",
			fmt.Sprintf("failed to initialize OpenCL runner for %s", dev.Name))
	}

	vecsize := opts.Vecsize
	if vecsize == 0 {
		vecsize = device.VectorWidth(dev)
		if !validVecsize(vecsize) || vecsize == 0 {
			vecsize = 1
		}
	}

	worksize := opts.Worksize
	if worksize == 0 {
		worksize = device.MaxWorkSize(dev)
	}

	id, _ := device.UniqueID(dev)

	return &Miner{
		dev:      dev,
		runner:   runner,
		opts:     opts,
		logger:   logger.WithComponent("miner").WithDevice(dev.Name, id),
		vecsize:  vecsize,
		worksize: worksize,
	}, nil
}

// String implements fmt.Stringer
func (m *Miner) String() string {
	return fmt.Sprintf("Miner (device %s vecsize %d worksize %d)", m.dev.Name, m.vecsize, m.worksize)
}

// Vecsize returns the effective SIMD lane count
func (m *Miner) Vecsize() int {
	return m.vecsize
}

// Worksize returns the effective global work size per dispatch
func (m *Miner) Worksize() int {
	return m.worksize
}

// Free releases the device runner
func (m *Miner) Free() {
	m.runner.Free()
}

// compilerArgs composes the OpenCL compiler arguments for this miner
func compilerArgs(vecsize int, extraOpts string) string {
	args := fmt.Sprintf("-D VECSIZE=%d", vecsize)
	if extraOpts != "" {
		args += " " + extraOpts
	}
	return args
}

// ensureBuilt lazily compiles the kernel program. Build failures surface
// the compiler log together with the arguments used.
func (m *Miner) ensureBuilt() error {
	if m.built {
		return nil
	}

	args := compilerArgs(m.vecsize, m.opts.ExtraCompilerOpts)
	if err := m.runner.CompileKernels([]string{kernelSource}, kernelNames, args); err != nil {
		return errors.Wrap(err, errors.ErrorTypeBuild, "compile_kernels",
			fmt.Sprintf("kernel build failed for %s", m.dev.Name)).
			WithContext("args", args).
			WithContext("log", err.Error())
	}

	m.built = true
	m.logger.Debug("kernel program built", "args", args)
	return nil
}

// Run is the blocking production loop. It dispatches the mining kernel
// against the current target until the shared state is stopped, abandoning
// in-flight offset ranges as soon as the target changes. Unrecovered device
// errors propagate to the caller.
func (m *Miner) Run(shared *state.Shared) error {
	if err := m.ensureBuilt(); err != nil {
		return err
	}

	addressBuf, err := m.runner.CreateEmptyBuffer(cl.READ_ONLY, krist.AddressLength)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "create_buffer", "address buffer")
	}
	blockBuf, err := m.runner.CreateEmptyBuffer(cl.READ_ONLY, krist.BlockLength)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "create_buffer", "prev block buffer")
	}
	prefixBuf, err := m.runner.CreateEmptyBuffer(cl.READ_ONLY, krist.PrefixLength)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "create_buffer", "prefix buffer")
	}
	solutionBuf, err := m.runner.CreateEmptyBuffer(cl.READ_WRITE, solutionBufSize)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "create_buffer", "solution buffer")
	}

	address := shared.Address()
	if err := cl.WriteBuffer(m.runner, 0, addressBuf, []byte(address), true); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "write_buffer", "address")
	}
	if err := cl.WriteBuffer(m.runner, 0, prefixBuf, []byte(m.opts.Prefix), true); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDevice, "write_buffer", "prefix")
	}

	zero := make([]byte, solutionBufSize)
	solution := make([]byte, solutionBufSize)
	stride := int64(m.worksize) * int64(m.vecsize)

	m.logger.Info("mining started", "prefix", m.opts.Prefix)

	for {
		target, ok := shared.GetTarget()
		if !ok {
			// stopped while waiting
			return nil
		}

		if err := cl.WriteBuffer(m.runner, 0, blockBuf, []byte(target.PrevBlock), true); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDevice, "write_buffer", "prev block")
		}
		if err := cl.WriteBuffer(m.runner, 0, solutionBuf, zero, true); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDevice, "write_buffer", "solution reset")
		}

		work := target.Work
		m.logger.Debug("target acquired", "prev_block", target.PrevBlock, "work", work)

		for offset := int64(1); ; offset += stride {
			if shared.IsStopped() {
				return nil
			}
			if current, ok := shared.GetTargetNow(); !ok || current != target {
				break
			}

			params := []cl.KernelParam{
				cl.BufferParam(addressBuf),
				cl.BufferParam(blockBuf),
				cl.BufferParam(prefixBuf),
				cl.Param(&offset),
				cl.Param(&work),
				cl.BufferParam(solutionBuf),
			}

			if err := m.runner.RunKernel("kristMiner", 1, nil, []uint64{uint64(m.worksize)}, nil, params, true); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDevice, "run_kernel", "kristMiner dispatch failed")
			}

			if err := cl.ReadBuffer(m.runner, 0, solutionBuf, solution); err != nil {
				return errors.Wrap(err, errors.ErrorTypeDevice, "read_buffer", "solution")
			}

			if solution[0] != 0 {
				nonce := string(solution[:krist.NonceLength])
				shared.PushSolution(krist.Solution{
					Target:  target,
					Address: address,
					Nonce:   nonce,
				})
				m.logger.LogSolutionFound(address, nonce, target.PrevBlock, work)

				if err := cl.WriteBuffer(m.runner, 0, solutionBuf, zero, true); err != nil {
					return errors.Wrap(err, errors.ErrorTypeDevice, "write_buffer", "solution reset")
				}
			}

			shared.AddHashes(stride)
		}
	}
}
