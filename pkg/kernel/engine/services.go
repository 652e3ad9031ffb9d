package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// KeyServices holds the *Services of a session. Owned by the engine.
const KeyServices SessionKey = "engine.services"

// Services tracks long-running collaborators started by commands, such as
// HTTP or MCP servers and cached client connections, so the session owner
// can wait for them and stop them. It is shared by clones of a session.
type Services struct {
	mu      sync.Mutex
	stops   map[string]func() error
	serving map[string]bool
}

// ServicesOf returns the service set of the session, creating it on first
// use.
func ServicesOf(s *Session) *Services {
	return s.Shared(KeyServices, func() any {
		return &Services{stops: make(map[string]func() error), serving: make(map[string]bool)}
	}).(*Services)
}

// Add registers a running service under name. A service already running
// under that name is kept and Add reports false.
func (s *Services) Add(name string, stop func() error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stops[name]; ok {
		return false
	}
	s.stops[name] = stop
	return true
}

// Serve registers a server under name. Servers keep a finished script
// alive until its runner is interrupted; see Serving.
func (s *Services) Serve(name string, stop func() error) bool {
	if !s.Add(name, stop) {
		return false
	}
	s.mu.Lock()
	s.serving[name] = true
	s.mu.Unlock()
	return true
}

// Serving lists the running servers in sorted order.
func (s *Services) Serving() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.serving))
	for name := range s.serving {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop stops and forgets the named service. Stopping an unknown service
// is a no-op.
func (s *Services) Stop(name string) error {
	s.mu.Lock()
	stop, ok := s.stops[name]
	delete(s.stops, name)
	delete(s.serving, name)
	s.mu.Unlock()
	if !ok || stop == nil {
		return nil
	}
	if err := stop(); err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}
	return nil
}

// Names lists the running services in sorted order.
func (s *Services) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.stops))
	for name := range s.stops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StopAll stops every service and joins their errors.
func (s *Services) StopAll() error {
	var errs []error
	for _, name := range s.Names() {
		if err := s.Stop(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
