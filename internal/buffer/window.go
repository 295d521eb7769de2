package buffer

import "github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"

// window holds a site's most recent snapshots, newest first.
type window struct {
	depth int
	items []domain.ReflectivitySnapshot
}

func newWindow(depth int) *window {
	return &window{depth: depth, items: make([]domain.ReflectivitySnapshot, 0, depth)}
}

// pushFront adds s as the newest snapshot, dropping the oldest when full.
func (w *window) pushFront(s domain.ReflectivitySnapshot) {
	if w.depth <= 0 {
		return
	}
	if len(w.items) < w.depth {
		w.items = append(w.items, domain.ReflectivitySnapshot{})
	}
	copy(w.items[1:], w.items[:len(w.items)-1])
	w.items[0] = s
}

func (w *window) len() int {
	return len(w.items)
}

func (w *window) full() bool {
	return len(w.items) >= w.depth
}

// snapshots copies the window so callers never share its backing array.
func (w *window) snapshots() []domain.ReflectivitySnapshot {
	out := make([]domain.ReflectivitySnapshot, len(w.items))
	copy(out, w.items)
	return out
}
