// Package device tracks the logical compute devices available to the runtime
// and the runtime's execution mode. The registry is process-global: it is
// probed once at startup and only reconfigured by tests.
package device

import (
	"fmt"
	"sync"
)

// Kind classifies a logical device.
type Kind string

const (
	CPU Kind = "CPU"
	GPU Kind = "GPU"
	TPU Kind = "TPU"
)

// Device is one logical compute device, e.g. {Name: "CPU:0", Kind: CPU}.
type Device struct {
	Name string
	Kind Kind
}

// IsAccelerator reports whether the device is a GPU or TPU.
func (d Device) IsAccelerator() bool { return d.Kind == GPU || d.Kind == TPU }

var (
	mu      sync.RWMutex
	devices = []Device{{Name: "CPU:0", Kind: CPU}}
	eager   = true
)

// All returns every registered logical device.
func All() []Device {
	mu.RLock()
	defer mu.RUnlock()
	return append([]Device(nil), devices...)
}

// List returns the registered logical devices of the given kind.
func List(kind Kind) []Device {
	mu.RLock()
	defer mu.RUnlock()
	var out []Device
	for _, d := range devices {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// ByName looks up a registered device by name.
func ByName(name string) (Device, error) {
	mu.RLock()
	defer mu.RUnlock()
	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("no logical device named %q", name)
}

// Default returns the first CPU device, the first registered device when no
// CPU is configured, or CPU:0 when the registry is empty.
func Default() Device {
	mu.RLock()
	defer mu.RUnlock()
	for _, d := range devices {
		if d.Kind == CPU {
			return d
		}
	}
	if len(devices) > 0 {
		return devices[0]
	}
	return Device{Name: "CPU:0", Kind: CPU}
}

// Configure replaces the registry. It returns the previous device list so
// tests can restore it.
func Configure(devs ...Device) []Device {
	mu.Lock()
	defer mu.Unlock()
	prev := devices
	devices = append([]Device(nil), devs...)
	return prev
}

// EagerEnabled reports whether the runtime is in eager execution mode.
// Executors can only be constructed while eager mode is on.
func EagerEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return eager
}

// SetEager switches the runtime execution mode and returns the previous one.
func SetEager(on bool) bool {
	mu.Lock()
	defer mu.Unlock()
	prev := eager
	eager = on
	return prev
}
