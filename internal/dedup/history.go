package dedup

// DefaultCapacity is the number of fingerprints kept in the seen history.
const DefaultCapacity = 500

// History is an insertion-ordered set of fingerprints with a fixed capacity.
// When full, adding a fingerprint evicts the oldest one.
type History struct {
	capacity int
	order    []Fingerprint
	index    map[Fingerprint]struct{}
}

// NewHistory builds a history from entries given oldest first. Duplicates are
// ignored and only the newest capacity entries are retained.
func NewHistory(capacity int, entries ...Fingerprint) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &History{
		capacity: capacity,
		order:    make([]Fingerprint, 0, min(len(entries), capacity)),
		index:    make(map[Fingerprint]struct{}, min(len(entries), capacity)),
	}
	for _, fp := range entries {
		h.Add(fp)
	}
	return h
}

// Contains reports whether fp has been recorded.
func (h *History) Contains(fp Fingerprint) bool {
	_, ok := h.index[fp]
	return ok
}

// Add records fp, evicting the oldest entries beyond capacity.
// It returns false if fp was already present.
func (h *History) Add(fp Fingerprint) bool {
	if h.Contains(fp) {
		return false
	}
	h.order = append(h.order, fp)
	h.index[fp] = struct{}{}
	for len(h.order) > h.capacity {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.index, oldest)
	}
	return true
}

// Len returns the number of fingerprints held.
func (h *History) Len() int { return len(h.order) }

// Capacity returns the maximum number of fingerprints held.
func (h *History) Capacity() int { return h.capacity }

// Entries returns the fingerprints oldest first.
func (h *History) Entries() []Fingerprint {
	out := make([]Fingerprint, len(h.order))
	copy(out, h.order)
	return out
}

// Clone returns an independent copy.
func (h *History) Clone() *History {
	return NewHistory(h.capacity, h.order...)
}
