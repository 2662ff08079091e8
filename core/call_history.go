package core

import "sync"

const defaultCallHistoryCapacity = 100

// callHistory is a fixed-size ring buffer of the most recent CallRecords.
type callHistory struct {
	mu    sync.Mutex
	items []CallRecord
	head  int
	count int
}

func newCallHistory(capacity int) *callHistory {
	if capacity < 1 {
		capacity = defaultCallHistoryCapacity
	}
	return &callHistory{items: make([]CallRecord, capacity)}
}

func (h *callHistory) Add(record CallRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 means all.
func (h *callHistory) Recent(limit int) []CallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]CallRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *callHistory) Last() (CallRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return CallRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}
