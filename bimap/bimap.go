// Package bimap implements the many-to-many stream↔connection relation
// the channel router consults on every fan-out decision. It is kept as
// two parallel multi-maps — byConnection and byStream — updated together
// by a single mutator so they never drift out of sync.
package bimap

import "sync"

// Map is a stream-id ↔ connection-name bimap, safe for concurrent use.
// Mutation is confined to the channel's configuration phase in normal
// operation, but the map itself tolerates concurrent readers and writers
// regardless.
type Map struct {
	mu           sync.RWMutex
	byConnection map[string]map[uint16]struct{}
	byStream     map[uint16]map[string]struct{}
}

// New creates an empty Map.
func New() *Map {
	return &Map{
		byConnection: make(map[string]map[uint16]struct{}),
		byStream:     make(map[uint16]map[string]struct{}),
	}
}

// Link records that streamID flows through the connection named
// connName. It is idempotent: linking the same pair twice has no
// additional effect.
func (m *Map) Link(connName string, streamID uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byConnection[connName] == nil {
		m.byConnection[connName] = make(map[uint16]struct{})
	}
	m.byConnection[connName][streamID] = struct{}{}

	if m.byStream[streamID] == nil {
		m.byStream[streamID] = make(map[string]struct{})
	}
	m.byStream[streamID][connName] = struct{}{}
}

// Unlink removes the (connName, streamID) pair, if present.
func (m *Map) Unlink(connName string, streamID uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.byConnection[connName]; ok {
		delete(conns, streamID)
		if len(conns) == 0 {
			delete(m.byConnection, connName)
		}
	}
	if names, ok := m.byStream[streamID]; ok {
		delete(names, connName)
		if len(names) == 0 {
			delete(m.byStream, streamID)
		}
	}
}

// StreamsFor returns every stream id bound to connName.
func (m *Map) StreamsFor(connName string) []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.byConnection[connName]
	if !ok {
		return nil
	}
	out := make([]uint16, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// ConnectionsFor returns every connection name bound to streamID.
func (m *Map) ConnectionsFor(streamID uint16) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names, ok := m.byStream[streamID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	return out
}

// HasConnection reports whether connName has any stream bound to it.
func (m *Map) HasConnection(connName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConnection[connName]) > 0
}
