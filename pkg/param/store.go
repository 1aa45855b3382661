// Package param implements the simulator's flat, typed parameter store.
//
// Components never read configuration files directly; they look up dotted
// keys (e.g. "pts.l1d$.num_sets") in a Store populated once at startup by
// whatever external loader the driver uses. The Store itself has no opinion
// about file formats — it is a typed map with defaulting lookups.
package param

// Store holds process-wide simulation parameters under three typed views.
// It is populated once before the simulator starts running and is read-only
// for the remainder of the simulation, so no synchronization is needed.
type Store struct {
	uint64s map[string]uint64
	bools   map[string]bool
	strings map[string]string
}

// NewStore returns an empty parameter store.
func NewStore() *Store {
	return &Store{
		uint64s: make(map[string]uint64),
		bools:   make(map[string]bool),
		strings: make(map[string]string),
	}
}

// SetUint64 assigns a uint64-valued key.
func (s *Store) SetUint64(key string, v uint64) { s.uint64s[key] = v }

// SetBool assigns a bool-valued key.
func (s *Store) SetBool(key string, v bool) { s.bools[key] = v }

// SetString assigns a string-valued key.
func (s *Store) SetString(key string, v string) { s.strings[key] = v }

// Uint64 returns the value for key, or def if it is not set.
func (s *Store) Uint64(key string, def uint64) uint64 {
	if v, ok := s.uint64s[key]; ok {
		return v
	}
	return def
}

// Bool returns the value for key, or def if it is not set.
func (s *Store) Bool(key string, def bool) bool {
	if v, ok := s.bools[key]; ok {
		return v
	}
	return def
}

// String returns the value for key, or "" if it is not set.
func (s *Store) String(key string) string {
	return s.strings[key]
}

// HasUint64 reports whether key has an explicit uint64 value.
func (s *Store) HasUint64(key string) bool {
	_, ok := s.uint64s[key]
	return ok
}
