package block

import (
	"sort"
	"sync"
)

// Registry is a name-keyed table of block devices. Drivers register their
// devices at init time and upper layers look them up by name when mounting.
type Registry struct {
	devices map[string]Device
	mu      sync.RWMutex
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]Device),
	}
}

// Register adds a device under its own name. Duplicate names are rejected.
func (r *Registry) Register(dev Device) error {
	if dev == nil || dev.Name() == "" {
		return ErrDeviceNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[dev.Name()]; ok {
		return ErrDeviceExists
	}
	r.devices[dev.Name()] = dev
	return nil
}

// Get looks up a device by name.
func (r *Registry) Get(name string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[name]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return dev, nil
}

// Unregister removes a device by name. The device is not closed.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[name]; !ok {
		return ErrDeviceNotFound
	}
	delete(r.devices, name)
	return nil
}

// Names returns the registered device names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.devices))
	for name := range r.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown closes every registered device and empties the registry.
// The first close error is returned; remaining devices are still closed.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for name, dev := range r.devices {
		if err := dev.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.devices, name)
	}
	return first
}
