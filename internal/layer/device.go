package layer

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// DeviceType represents the hardware device used for computation.
type DeviceType int

const (
	CPU DeviceType = iota
)

func (t DeviceType) String() string {
	switch t {
	case CPU:
		return "cpu"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(t))
	}
}

// Device describes the compute capabilities chosen at startup.
type Device interface {
	Type() DeviceType
	Name() string
	// Workers is the number of goroutines worth using for data preparation.
	Workers() int
	// Vectorized reports whether the host has AVX2 and FMA.
	Vectorized() bool
}

// CPUDevice handles computations on the host CPU.
type CPUDevice struct {
	name       string
	workers    int
	vectorized bool
}

func (d *CPUDevice) Type() DeviceType { return CPU }
func (d *CPUDevice) Name() string     { return d.name }
func (d *CPUDevice) Workers() int     { return d.workers }
func (d *CPUDevice) Vectorized() bool { return d.vectorized }

func (d *CPUDevice) String() string {
	return fmt.Sprintf("%s (%s, workers=%d, avx2+fma=%t)", d.Type(), d.Name(), d.Workers(), d.Vectorized())
}

// DetectDevice returns the best available device for the current host.
// Only the CPU is supported; detection is done once and the result passed around.
func DetectDevice() Device {
	name := cpuid.CPU.BrandName
	if name == "" {
		name = runtime.GOARCH
	}
	workers := cpuid.CPU.LogicalCores
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if n := runtime.GOMAXPROCS(0); n < workers {
		workers = n
	}
	return &CPUDevice{
		name:       name,
		workers:    workers,
		vectorized: cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3),
	}
}
