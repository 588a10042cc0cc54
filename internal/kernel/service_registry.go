package kernel

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"

	"nanobot/pkg/bot"
)

// ServiceRegistry holds the named singletons modules resolve in OnRegister.
// Entries cannot be replaced or removed.
type ServiceRegistry struct {
	mu     sync.RWMutex
	byName map[string]any
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{byName: make(map[string]any)}
}

func (r *ServiceRegistry) Register(name string, service any) error {
	switch {
	case name == "":
		return fmt.Errorf("register service: empty name")
	case isNil(service):
		return fmt.Errorf("register service %s: nil value", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[name]; taken {
		return fmt.Errorf("register service %s: %w", name, bot.ErrServiceAlreadyRegistered)
	}
	r.byName[name] = service

	return nil
}

func (r *ServiceRegistry) Resolve(name string) (any, error) {
	r.mu.RLock()
	service, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resolve service %q: %w", name, bot.ErrServiceNotFound)
	}

	return service, nil
}

// Names lists registered service names in sorted order.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.byName))
}

// isNil also catches typed nils hidden in an interface.
func isNil(value any) bool {
	if value == nil {
		return true
	}
	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
