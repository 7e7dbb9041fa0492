package watcher

import "time"

// ReloadedMsg is the Bubble Tea message sent after the corpus has been
// rebuilt from a reload batch.
type ReloadedMsg struct {
	Paths     []string
	Documents int
	Err       error
	Time      time.Time
}

// NewReloadedMsg records the outcome of one corpus rebuild.
func NewReloadedMsg(paths []string, documents int, err error) ReloadedMsg {
	return ReloadedMsg{
		Paths:     paths,
		Documents: documents,
		Err:       err,
		Time:      time.Now(),
	}
}

// History is a ring of recent reload batches.
type History struct {
	reloads []Reload
	size    int
	head    int
	count   int
}

// NewHistory creates a history ring with the given capacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = historyCapacity
	}
	return &History{
		reloads: make([]Reload, capacity),
		size:    capacity,
	}
}

// Add appends a reload record, evicting the oldest when full.
func (h *History) Add(r Reload) {
	h.reloads[h.head] = r
	h.head = (h.head + 1) % h.size
	if h.count < h.size {
		h.count++
	}
}

// Recent returns the n most recent records, oldest first.
func (h *History) Recent(n int) []Reload {
	if n > h.count {
		n = h.count
	}
	if n <= 0 {
		return nil
	}

	out := make([]Reload, n)
	for i := 0; i < n; i++ {
		idx := (h.head - n + i + h.size) % h.size
		out[i] = h.reloads[idx]
	}
	return out
}

// Len returns the number of records held.
func (h *History) Len() int {
	return h.count
}
