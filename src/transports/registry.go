package transports

import (
	"fmt"
	"sort"
	"sync"

	"ig-streamer/src/interfaces"
)

// The global registry map. Key is the transport type (e.g., "lightstreamer"),
// value is the constructor function.
var (
	registry   = make(map[string]interfaces.ITransportConstructor)
	registryMu sync.RWMutex
)

// Register is called by each transport's init() function to add itself to the map.
func Register(name string, constructor interfaces.ITransportConstructor) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("transport constructor already registered for name: %s", name)
	}
	registry[name] = constructor
	return nil
}

// GetConstructor is used by the transport factory to retrieve the constructor.
func GetConstructor(name string) (interfaces.ITransportConstructor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	constructor, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown transport type: %s", name)
	}
	return constructor, nil
}

// Registered lists the known transport types.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
