package network

import (
	"github.com/bardlex/kristforge/internal/krist"
	"github.com/bardlex/kristforge/internal/state"
	"github.com/bardlex/kristforge/pkg/errors"
)

// demoPrevBlock is the synthetic previous block used by demo mode
const demoPrevBlock = "000000000000"

// demoBlockValue is the block reward reported for demo solutions
const demoBlockValue = 25

// RunDemo runs the submission loop against a synthetic network: a fixed
// target is set once and every submission is accepted immediately with a
// monotonically increasing fake block height. No websocket is opened.
func RunDemo(fixedWork int64, shared *state.Shared, opts Options) error {
	logger := opts.logger().WithComponent("network-demo")

	target, err := krist.NewTarget(demoPrevBlock, fixedWork)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "run_demo", "invalid demo work")
	}

	shared.SetTarget(target)
	logger.Info("demo mode", "work", fixedWork)
	opts.Callbacks.connect()

	height := int64(1)
	for {
		solution, ok := shared.PopSolution()
		if !ok {
			// stopped
			return nil
		}

		opts.Callbacks.submitted(solution)
		logger.LogBlockAccepted(solution.Address, solution.Nonce, height, demoBlockValue)
		opts.Callbacks.solved(solution, height, demoBlockValue)
		height++
	}
}
