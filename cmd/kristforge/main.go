// Package main implements the kristforge CLI: it selects OpenCL devices,
// self-tests and spawns one miner per device, and drives the Krist node
// protocol on the main goroutine.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	cl "github.com/CyberChainXyz/go-opencl"

	"github.com/bardlex/kristforge/internal/config"
	"github.com/bardlex/kristforge/internal/device"
	"github.com/bardlex/kristforge/internal/krist"
	"github.com/bardlex/kristforge/internal/metrics"
	"github.com/bardlex/kristforge/internal/mining"
	"github.com/bardlex/kristforge/internal/network"
	"github.com/bardlex/kristforge/internal/state"
	"github.com/bardlex/kristforge/pkg/log"
)

// multiFlag collects repeatable string flags
type multiFlag []string

func (m *multiFlag) String() string { return fmt.Sprint([]string(*m)) }
func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// intListFlag collects repeatable integer flags
type intListFlag []int

func (m *intListFlag) String() string { return fmt.Sprint([]int(*m)) }
func (m *intListFlag) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*m = append(*m, n)
	return nil
}

// countFlag counts repeatable boolean flags (-v -v ...)
type countFlag int

func (c *countFlag) String() string   { return strconv.Itoa(int(*c)) }
func (c *countFlag) IsBoolFlag() bool { return true }
func (c *countFlag) Set(string) error {
	*c++
	return nil
}

type cliArgs struct {
	address     string
	listDevices bool
	allDevices  bool
	bestDevice  bool
	deviceIDs   multiFlag
	deviceNums  intListFlag
	node        string
	vecsize     int
	worksize    int
	onlyTest    bool
	clOpts      string
	verbosity   countFlag
	exitAfter   int
	demoWork    int64
	prefix      int
}

func parseArgs(cfg *config.Config) *cliArgs {
	args := &cliArgs{}

	flag.BoolVar(&args.listDevices, "list-devices", false, "List OpenCL devices and exit")
	flag.BoolVar(&args.listDevices, "l", false, "List OpenCL devices and exit (shorthand)")
	flag.BoolVar(&args.allDevices, "all-devices", false, "Use all OpenCL devices to mine")
	flag.BoolVar(&args.allDevices, "a", false, "Use all OpenCL devices to mine (shorthand)")
	flag.BoolVar(&args.bestDevice, "best-device", false, "Use the best OpenCL device to mine")
	flag.BoolVar(&args.bestDevice, "b", false, "Use the best OpenCL device to mine (shorthand)")
	flag.Var(&args.deviceIDs, "device-id", "Use OpenCL device by ID (repeatable)")
	flag.Var(&args.deviceIDs, "d", "Use OpenCL device by ID (repeatable, shorthand)")
	flag.Var(&args.deviceNums, "device-num", "Use OpenCL device by 0-based position in the list (repeatable)")
	flag.StringVar(&args.node, "node", cfg.Node, "Krist node websocket init URL")
	flag.IntVar(&args.vecsize, "vector-width", 0, "Vector width for all devices (1, 2, 4, 8 or 16)")
	flag.IntVar(&args.vecsize, "V", 0, "Vector width for all devices (shorthand)")
	flag.IntVar(&args.worksize, "worksize", 0, "Global work size for all devices")
	flag.IntVar(&args.worksize, "w", 0, "Global work size for all devices (shorthand)")
	flag.BoolVar(&args.onlyTest, "only-test", false, "Run tests on selected miners and exit")
	flag.BoolVar(&args.onlyTest, "t", false, "Run tests on selected miners and exit (shorthand)")
	flag.StringVar(&args.clOpts, "cl-opts", "", "Extra options for the OpenCL compiler")
	flag.Var(&args.verbosity, "verbose", "Increase log verbosity (repeatable)")
	flag.Var(&args.verbosity, "v", "Increase log verbosity (repeatable, shorthand)")
	flag.IntVar(&args.exitAfter, "exit-after", 0, "Stop mining after this many seconds")
	flag.Int64Var(&args.demoWork, "demo", 0, "Mine against a synthetic network with this fixed work")
	flag.IntVar(&args.prefix, "prefix", -1, "Nonce prefix byte (0..255); random if unset")
	flag.Parse()

	args.address = "k5ztameslf"
	if flag.NArg() > 0 {
		args.address = flag.Arg(0)
	}

	return args
}

// generatePrefix randomly generates a 2-character miner prefix
func generatePrefix() string {
	return fmt.Sprintf("%02x", rand.Intn(256))
}

// formatHashRate renders a hashes-per-second value with a binary-free unit
func formatHashRate(rate float64) string {
	switch {
	case rate >= 1e9:
		return fmt.Sprintf("%.2f GH/s", rate/1e9)
	case rate >= 1e6:
		return fmt.Sprintf("%.2f MH/s", rate/1e6)
	case rate >= 1e3:
		return fmt.Sprintf("%.2f KH/s", rate/1e3)
	default:
		return fmt.Sprintf("%.0f H/s", rate)
	}
}

func printDeviceList(devices []*cl.OpenCLDevice) {
	fmt.Printf("%-30.30s | %-15.15s | %s\n", "Device", "ID", "Score")
	for _, d := range devices {
		id, ok := device.UniqueID(d)
		if !ok {
			id = "(n/a)"
		}
		fmt.Printf("%-30.30s | %-15.15s | %d\n", d.Name, id, device.Score(d))
	}
}

// selectDevices resolves the device selection flags against the enumerated
// device list
func selectDevices(all []*cl.OpenCLDevice, args *cliArgs) ([]*cl.OpenCLDevice, error) {
	var selected []*cl.OpenCLDevice

	if args.allDevices {
		selected = append(selected, all...)
	}

	if args.bestDevice {
		best, err := device.Best(all)
		if err != nil {
			return nil, err
		}
		selected = append(selected, best)
	}

	for _, id := range args.deviceIDs {
		d, err := device.ByID(all, id)
		if err != nil {
			return nil, err
		}
		selected = append(selected, d)
	}

	for _, n := range args.deviceNums {
		d, err := device.ByNum(all, n)
		if err != nil {
			return nil, err
		}
		selected = append(selected, d)
	}

	return selected, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	args := parseArgs(cfg)

	logLevel := cfg.LogLevel
	if args.verbosity > 0 {
		logLevel = "debug"
	}
	logger := log.New(cfg.ServiceName, cfg.Version, logLevel, cfg.LogFormat)

	if err := run(cfg, args, logger); err != nil {
		logger.WithError(err).Error("kristforge failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, args *cliArgs, logger *log.Logger) error {
	allDevices, err := device.All()
	if err != nil {
		return err
	}

	if args.listDevices {
		printDeviceList(allDevices)
		return nil
	}

	if err := krist.ValidateAddress(args.address); err != nil {
		return err
	}

	selected, err := selectDevices(allDevices, args)
	if err != nil {
		return err
	}

	fmt.Printf("%d device(s) selected\n", len(selected))
	if len(selected) == 0 {
		fmt.Fprintln(os.Stderr, "No devices selected")
		os.Exit(1)
	}

	if args.prefix > 255 {
		return fmt.Errorf("prefix must be in 0..255, got %d", args.prefix)
	}

	// Create and self-test one miner per device. Each miner gets its own
	// random prefix unless one was pinned on the command line.
	var miners []*mining.Miner
	for _, d := range selected {
		prefix := generatePrefix()
		if args.prefix >= 0 {
			prefix = fmt.Sprintf("%02x", args.prefix)
		}

		opts, err := mining.NewOptions(prefix, args.worksize, args.vecsize, args.clOpts)
		if err != nil {
			return err
		}

		m, err := mining.New(d, opts, logger)
		if err != nil {
			return err
		}
		defer m.Free()

		logger.Info("created miner", "miner", m.String())
		miners = append(miners, m)
	}

	for _, m := range miners {
		if err := m.RunTests(); err != nil {
			return err
		}
	}
	logger.Info("self-tests completed successfully")

	if args.onlyTest {
		return nil
	}

	shared, err := state.New(args.address)
	if err != nil {
		return err
	}

	// Optional metrics sink; a nil client drops all writes
	var influx *metrics.Client
	if cfg.InfluxURL != "" {
		influx, err = metrics.NewClient(&metrics.Config{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		})
		if err != nil {
			return err
		}
		defer influx.Close()
	}

	// Miner threads
	var wg sync.WaitGroup
	for _, m := range miners {
		wg.Add(1)
		go func(m *mining.Miner) {
			defer wg.Done()
			if err := m.Run(shared); err != nil {
				logger.WithError(err).Error("miner failed", "miner", m.String())
				shared.Stop()
			}
		}(m)
	}

	// Status sampler
	go statusLoop(shared, influx, logger, cfg.StatusInterval)

	// Optional run timer
	if args.exitAfter > 0 {
		go func() {
			select {
			case <-time.After(time.Duration(args.exitAfter) * time.Second):
				logger.Info("exit timer elapsed", "seconds", args.exitAfter)
				shared.Stop()
			case <-shared.Done():
			}
		}()
	}

	// Shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("shutdown signal received", "signal", sig.String())
			shared.Stop()
		case <-shared.Done():
		}
	}()

	netOpts := network.Options{
		AutoReconnect: true,
		UserAgent:     cfg.UserAgent,
		Logger:        logger,
		Callbacks: network.Callbacks{
			OnConnect: func() {
				logger.Info("connected to node", "node", args.node)
			},
			OnDisconnect: func(reconnecting bool) {
				logger.Warn("disconnected from node", "reconnecting", reconnecting)
			},
			OnSubmitted: func(sol krist.Solution) {
				logger.Info("submitted solution", "nonce", sol.Nonce)
			},
			OnSolved: func(sol krist.Solution, height, value int64) {
				logger.LogBlockAccepted(sol.Address, sol.Nonce, height, value)
				influx.WriteBlockAccepted(sol.Address, sol.Nonce, height, value)
			},
			OnRejected: func(sol krist.Solution, reason string) {
				logger.Warn("solution rejected", "nonce", sol.Nonce, "reason", reason)
				influx.WriteBlockRejected(sol.Address, sol.Nonce, reason)
			},
		},
	}

	// The network runner owns the main goroutine until shutdown
	if args.demoWork > 0 {
		err = network.RunDemo(args.demoWork, shared, netOpts)
	} else {
		err = network.Run(args.node, shared, netOpts)
	}

	shared.Stop()
	wg.Wait()

	return err
}

// statusLoop samples the hash counter and reports a human-readable hashrate
func statusLoop(shared *state.Shared, influx *metrics.Client, logger *log.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := shared.HashesCompleted()
	lastTime := time.Now()

	for {
		select {
		case <-shared.Done():
			return
		case now := <-ticker.C:
			total := shared.HashesCompleted()
			elapsed := now.Sub(lastTime).Seconds()
			if elapsed <= 0 {
				continue
			}

			rate := float64(total-last) / elapsed
			logger.LogHashRate(total, formatHashRate(rate))
			influx.WriteHashrate(shared.Address(), rate, total)

			last = total
			lastTime = now
		}
	}
}
