package core

import (
	"encoding/binary"
	"encoding/json"
	"hash/fnv"
	"sort"
	"sync"
)

// Assigns is the thread-safe state bag of a live component.
// Every write goes through a ChangeTracker; the router skips the render
// after an event or info message that changed nothing.
type Assigns struct {
	data    map[string]any
	tracker *ChangeTracker
	mu      sync.RWMutex
}

// NewAssigns creates an empty assigns store.
func NewAssigns() *Assigns {
	return &Assigns{
		data:    make(map[string]any),
		tracker: NewChangeTracker(),
	}
}

// Get returns the stored value for key.
func (a *Assigns) Get(key string) any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.data[key]
}

// GetBool returns key as a bool, or false.
func (a *Assigns) GetBool(key string) bool {
	v, _ := a.Get(key).(bool)
	return v
}

// Set stores a value and records the change.
func (a *Assigns) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[key] = value
	a.tracker.Track(key, value)
}

// SetAll stores several values at once.
func (a *Assigns) SetAll(values map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, v := range values {
		a.data[k] = v
		a.tracker.Track(k, v)
	}
}

// Delete removes a key.
func (a *Assigns) Delete(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.data, key)
	a.tracker.Track(key, nil)
}

// Tracker returns the change tracker.
func (a *Assigns) Tracker() *ChangeTracker {
	return a.tracker
}

// ChangeTracker remembers a hash per field and flags fields whose hash
// moved since the last GetChanged/Reset.
type ChangeTracker struct {
	hashes  map[string]uint64
	changed map[string]bool
	mu      sync.Mutex
}

// NewChangeTracker creates an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{
		hashes:  make(map[string]uint64),
		changed: make(map[string]bool),
	}
}

// Track records a write to field. Writing an equal value is not a change.
func (ct *ChangeTracker) Track(field string, value any) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	h := hashValue(value)
	if prev, ok := ct.hashes[field]; !ok || prev != h {
		ct.changed[field] = true
	}
	ct.hashes[field] = h
}

// GetChanged returns the changed fields in sorted order and clears them.
func (ct *ChangeTracker) GetChanged() []string {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	fields := make([]string, 0, len(ct.changed))
	for f := range ct.changed {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	ct.changed = make(map[string]bool)
	return fields
}

// Reset clears pending changes but keeps the known hashes.
func (ct *ChangeTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.changed = make(map[string]bool)
}

func hashValue(v any) uint64 {
	h := fnv.New64a()

	switch val := v.(type) {
	case nil:
		h.Write([]byte{0})
	case string:
		h.Write([]byte(val))
	case bool:
		if val {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{2})
		}
	case int:
		binary.Write(h, binary.LittleEndian, int64(val))
	case int64:
		binary.Write(h, binary.LittleEndian, val)
	case float64:
		binary.Write(h, binary.LittleEndian, val)
	default:
		// structs and slices hash by their JSON form
		data, _ := json.Marshal(val)
		h.Write(data)
	}

	return h.Sum64()
}
