package engine

import "sync"

// SessionKey names an entry in the session store. Each key is declared as
// a constant by the package that owns the entry; other packages must treat
// the value as opaque.
type SessionKey string

// KeyScriptTempDir holds the temporary directory created for a session.
// Owned by the engine.
const KeyScriptTempDir SessionKey = "engine.temp-dir"

// Session is the store for cross-command state that is not script-variable
// state: cached connections, registered defaults, prepared answers. It is
// shared by every context derived from the same root and is safe for
// concurrent use.
type Session struct {
	mu     sync.RWMutex
	values map[SessionKey]any
	shared *sharedValues
}

// sharedValues is the part of a session that clones do not copy.
type sharedValues struct {
	mu     sync.Mutex
	values map[SessionKey]any
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{
		values: make(map[SessionKey]any),
		shared: &sharedValues{values: make(map[SessionKey]any)},
	}
}

// Get returns the value stored under key.
func (s *Session) Get(key SessionKey) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key SessionKey, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key.
func (s *Session) Delete(key SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores and returns the result of create.
func (s *Session) LoadOrStore(key SessionKey, create func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	v := create()
	s.values[key] = v
	return v
}

// Shared returns the value under key in the store shared by the session
// and all of its clones, storing the result of create on first use.
// Registries of running servers and open connections live here, so a
// clone that starts one still leaves it visible to the session owner.
func (s *Session) Shared(key SessionKey, create func() any) any {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	if v, ok := s.shared.values[key]; ok {
		return v
	}
	v := create()
	s.shared.values[key] = v
	return v
}

// Update replaces the value under key with the result of fn, holding the
// session lock for the whole read-modify-write. fn receives the current
// value and whether it was present.
func (s *Session) Update(key SessionKey, fn func(old any, ok bool) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.values[key]
	v := fn(old, ok)
	s.values[key] = v
	return v
}

// Clone returns a shallow copy of the session. The shared store is not
// copied.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &Session{values: make(map[SessionKey]any, len(s.values)), shared: s.shared}
	for k, v := range s.values {
		out.values[k] = v
	}
	return out
}

// SessionValue returns the value under key if it has type T.
func SessionValue[T any](s *Session, key SessionKey) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
