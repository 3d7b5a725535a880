// Package device wraps OpenCL device enumeration and selection for mining.
package device

import (
	"fmt"

	cl "github.com/CyberChainXyz/go-opencl"

	"github.com/bardlex/kristforge/pkg/errors"
)

// All enumerates every OpenCL device across all platforms
func All() ([]*cl.OpenCLDevice, error) {
	info, err := cl.Info()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDevice, "enumerate",
			"failed to query OpenCL platforms")
	}

	var devices []*cl.OpenCLDevice
	for _, p := range info.Platforms {
		devices = append(devices, p.Devices...)
	}
	return devices, nil
}

// UniqueID derives a stable identifier from the device's PCIe topology,
// formatted as PCIE:BB:DD.F. The second return is false when the runtime
// exposes no topology for the device.
func UniqueID(d *cl.OpenCLDevice) (string, bool) {
	pci := d.PCIInfo
	if pci.Bus == 0 && pci.Device == 0 && pci.Function == 0 {
		return "", false
	}
	return formatPCIE(uint32(pci.Bus), uint32(pci.Device), uint32(pci.Function)), true
}

// formatPCIE renders bus and device as hex bytes and function as decimal
func formatPCIE(bus, dev, fn uint32) string {
	return fmt.Sprintf("PCIE:%02x:%02x.%d", bus&0xff, dev&0xff, fn)
}

// Score is a rough throughput heuristic used to rank devices
func Score(d *cl.OpenCLDevice) int64 {
	return int64(d.Max_compute_units) *
		int64(d.Max_clock_frequency) *
		int64(d.Preferred_vector_width_char)
}

// VectorWidth returns the device's preferred char vector width, used as
// the default kernel VECSIZE
func VectorWidth(d *cl.OpenCLDevice) int {
	return int(d.Preferred_vector_width_char)
}

// MaxWorkSize returns the product of the device's max work item sizes,
// used as the default global work size per dispatch
func MaxWorkSize(d *cl.OpenCLDevice) int {
	size := 1
	for _, dim := range d.Max_work_item_sizes {
		size *= int(dim)
	}
	return size
}

// Best returns the highest-scoring device
func Best(devices []*cl.OpenCLDevice) (*cl.OpenCLDevice, error) {
	idx := bestIndex(scores(devices))
	if idx < 0 {
		return nil, errors.New(errors.ErrorTypeDevice, "best_device", "no devices available")
	}
	return devices[idx], nil
}

// ByID finds a device by its PCIe unique ID
func ByID(devices []*cl.OpenCLDevice, id string) (*cl.OpenCLDevice, error) {
	for _, d := range devices {
		if devID, ok := UniqueID(d); ok && devID == id {
			return d, nil
		}
	}
	return nil, errors.New(errors.ErrorTypeDevice, "device_by_id",
		fmt.Sprintf("no device with ID %s", id))
}

// ByNum finds a device by its 0-based position in the enumerated list
func ByNum(devices []*cl.OpenCLDevice, n int) (*cl.OpenCLDevice, error) {
	if n < 0 || n >= len(devices) {
		return nil, errors.New(errors.ErrorTypeDevice, "device_by_num",
			fmt.Sprintf("device number %d out of range [0,%d)", n, len(devices)))
	}
	return devices[n], nil
}

func scores(devices []*cl.OpenCLDevice) []int64 {
	out := make([]int64, len(devices))
	for i, d := range devices {
		out[i] = Score(d)
	}
	return out
}

// bestIndex returns the index of the maximum score, or -1 for an empty slice
func bestIndex(scores []int64) int {
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	return best
}
