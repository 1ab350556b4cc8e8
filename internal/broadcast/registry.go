// Package broadcast fans "new scan" hints out to lecturers watching a course.
// Delivery is best effort: receivers reconcile by re-fetching session detail.
package broadcast

import (
	"sync"
)

// Event is the only message pushed to listeners
type Event struct {
	Type string `json:"type"`
}

// NewScan tells a lecturer view that a scan was recorded for its course
var NewScan = Event{Type: "new_scan"}

// Listener is one open push channel, typically a WebSocket connection.
// Deliver must not block; it reports false when the event was not accepted.
type Listener interface {
	Deliver(ev Event) bool
	Close()
}

// Gauge receives the number of registered listeners
type Gauge interface {
	Set(float64)
}

// Registry maps course IDs to the listeners watching them
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]map[Listener]struct{}
	count     int
	closed    bool
	gauge     Gauge
}

// NewRegistry creates an empty registry. gauge may be nil.
func NewRegistry(gauge Gauge) *Registry {
	return &Registry{
		listeners: make(map[string]map[Listener]struct{}),
		gauge:     gauge,
	}
}

// Register associates l with courseID. It returns false, and closes l, once the
// registry has been shut down.
func (r *Registry) Register(courseID string, l Listener) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		l.Close()
		return false
	}
	set, ok := r.listeners[courseID]
	if !ok {
		set = make(map[Listener]struct{})
		r.listeners[courseID] = set
	}
	if _, dup := set[l]; !dup {
		set[l] = struct{}{}
		r.count++
	}
	r.reportLocked()
	r.mu.Unlock()
	return true
}

// Unregister removes l from courseID. Unknown pairs are ignored.
func (r *Registry) Unregister(courseID string, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.listeners[courseID]
	if !ok {
		return
	}
	if _, ok := set[l]; !ok {
		return
	}
	delete(set, l)
	r.count--
	if len(set) == 0 {
		delete(r.listeners, courseID)
	}
	r.reportLocked()
}

// Notify pushes NewScan to every listener of courseID. With no listener it does nothing.
func (r *Registry) Notify(courseID string) {
	r.mu.RLock()
	set := r.listeners[courseID]
	targets := make([]Listener, 0, len(set))
	for l := range set {
		targets = append(targets, l)
	}
	r.mu.RUnlock()

	for _, l := range targets {
		l.Deliver(NewScan)
	}
}

// Count returns the number of listeners registered for courseID
func (r *Registry) Count(courseID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[courseID])
}

// Close closes every listener and rejects further registrations
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := r.listeners
	r.listeners = make(map[string]map[Listener]struct{})
	r.count = 0
	r.reportLocked()
	r.mu.Unlock()

	for _, set := range all {
		for l := range set {
			l.Close()
		}
	}
}

func (r *Registry) reportLocked() {
	if r.gauge != nil {
		r.gauge.Set(float64(r.count))
	}
}
