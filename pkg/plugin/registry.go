package plugin

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

var systemNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidSystemName reports whether name is usable as a system name:
// a non-empty run of ASCII letters, digits and underscores.
func ValidSystemName(name string) bool {
	return systemNamePattern.MatchString(name)
}

// Register makes an extension factory available under name, typically from
// an init function in the extension's package. The name must be a valid
// system name. Registering the same name twice panics.
func Register(name string, f Factory) {
	if !ValidSystemName(name) {
		panic(fmt.Sprintf("plugin: Register with invalid name %q", name))
	}
	if f == nil {
		panic("plugin: Register factory is nil")
	}

	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("plugin: Register called twice for %q", name))
	}
	factories[name] = f
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Factories returns the sorted names of all registered factories.
func Factories() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// unregisterAllFactories is used by tests in this package.
func unregisterAllFactories() {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories = make(map[string]Factory)
}
