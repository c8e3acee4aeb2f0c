// Package context implements the shared value store handed to template
// rendering and placeholder substitution. It is a nested string-keyed
// mapping which additionally allows integer keys per nesting level, with
// greatest-available-key fallback on lookup misses.
package context

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Store is a nested mapping from keys to scalars, lists, or child stores.
// Integer keys live in their own index so that lookup misses can fall back
// to the numerically closest populated entry.
type Store struct {
	entries map[string]interface{}
	numeric map[int]interface{}
}

// New returns an empty store
func New() *Store {
	return &Store{
		entries: make(map[string]interface{}),
		numeric: make(map[int]interface{}),
	}
}

// FromMap builds a store from a decoded configuration mapping. Nested maps
// become child stores. Both map[string]interface{} and
// map[interface{}]interface{} shapes are accepted, since YAML decoding
// produces either depending on key types.
func FromMap(m interface{}) *Store {
	s := New()
	switch typed := m.(type) {
	case map[string]interface{}:
		for k, v := range typed {
			s.Set(k, v)
		}
	case map[interface{}]interface{}:
		for k, v := range typed {
			s.Set(keyString(k), v)
		}
	case *Store:
		s.Update(typed)
	}
	return s
}

// Set inserts a value under a string key. Digit-only keys are treated as
// numeric so that YAML authors can write `1:` or `"1":` interchangeably.
func (s *Store) Set(key string, value interface{}) {
	if n, err := strconv.Atoi(key); err == nil {
		s.SetIndex(n, value)
		return
	}
	s.entries[key] = normalize(value)
}

// SetIndex inserts a value under an integer key
func (s *Store) SetIndex(n int, value interface{}) {
	s.numeric[n] = normalize(value)
}

// Get returns the value under a string key
func (s *Store) Get(key string) (interface{}, bool) {
	if n, err := strconv.Atoi(key); err == nil {
		return s.GetIndex(n)
	}
	v, ok := s.entries[key]
	return v, ok
}

// GetIndex returns the value under an integer key. A miss resolves to the
// greatest populated key not above n, and below the smallest populated key
// it resolves to that smallest key. Only a store with no numeric keys at
// all reports a miss.
func (s *Store) GetIndex(n int) (interface{}, bool) {
	if v, ok := s.numeric[n]; ok {
		return v, true
	}
	if len(s.numeric) == 0 {
		return nil, false
	}

	keys := make([]int, 0, len(s.numeric))
	for k := range s.numeric {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	resolved := keys[0]
	for _, k := range keys {
		if k > n {
			break
		}
		resolved = k
	}
	return s.numeric[resolved], true
}

// Resolve walks a dotted path such as "fonts.1" through nested stores,
// applying the numeric fallback rule at each level.
func (s *Store) Resolve(path string) (interface{}, bool) {
	var current interface{} = s
	for _, segment := range strings.Split(path, ".") {
		store, ok := current.(*Store)
		if !ok {
			return nil, false
		}
		current, ok = store.Get(segment)
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Update deep-merges other into the store. Conflicting nested stores are
// merged recursively; any other conflict is won by other.
func (s *Store) Update(other *Store) {
	if other == nil {
		return
	}
	for k, v := range other.entries {
		if child, ok := v.(*Store); ok {
			if existing, ok := s.entries[k].(*Store); ok {
				existing.Update(child)
				continue
			}
			s.entries[k] = child.Copy()
			continue
		}
		s.entries[k] = v
	}
	for k, v := range other.numeric {
		if child, ok := v.(*Store); ok {
			if existing, ok := s.numeric[k].(*Store); ok {
				existing.Update(child)
				continue
			}
			s.numeric[k] = child.Copy()
			continue
		}
		s.numeric[k] = v
	}
}

// ReverseUpdate merges other into the store while keeping existing values
// on conflicts. Used for baseline context files which module imports
// should win over.
func (s *Store) ReverseUpdate(other *Store) {
	if other == nil {
		return
	}
	merged := New()
	merged.Update(other)
	merged.Update(s)
	s.entries = merged.entries
	s.numeric = merged.numeric
}

// Copy returns a deep copy of the store
func (s *Store) Copy() *Store {
	c := New()
	c.Update(s)
	return c
}

// Len returns the number of keys at the top level
func (s *Store) Len() int {
	return len(s.entries) + len(s.numeric)
}

// Keys returns all top-level keys, numeric keys rendered as strings
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	for k := range s.entries {
		keys = append(keys, k)
	}
	for k := range s.numeric {
		keys = append(keys, strconv.Itoa(k))
	}
	sort.Strings(keys)
	return keys
}

// AsMap flattens the store into plain nested maps, with numeric keys
// rendered as strings. This is the shape handed to template rendering.
func (s *Store) AsMap() map[string]interface{} {
	m := make(map[string]interface{}, s.Len())
	for k, v := range s.entries {
		m[k] = flatten(v)
	}
	for k, v := range s.numeric {
		m[strconv.Itoa(k)] = flatten(v)
	}
	return m
}

func flatten(v interface{}) interface{} {
	switch typed := v.(type) {
	case *Store:
		return typed.AsMap()
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = flatten(item)
		}
		return out
	default:
		return v
	}
}

func keyString(k interface{}) string {
	switch typed := k.(type) {
	case string:
		return typed
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

// normalize converts decoded nested maps into child stores
func normalize(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		return FromMap(typed)
	case *Store:
		return typed
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
