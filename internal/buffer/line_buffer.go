package buffer

import (
	"strings"
	"sync"
	"time"
)

// Entry is one line stored in the buffer
type Entry struct {
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// LineBuffer is a bounded, append-only ring of text lines. When full the
// oldest line is overwritten. Readers always receive copies.
type LineBuffer struct {
	mu       sync.RWMutex
	entries  []Entry
	start    int
	size     int
	nextSeq  uint64
	dropped  uint64
	capacity int
}

// NewLineBuffer creates a buffer holding at most capacity lines. A
// non-positive capacity is treated as 1.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LineBuffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
		nextSeq:  1,
	}
}

// Add appends a line and returns the stored entry
func (b *LineBuffer) Add(text string) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := Entry{
		Seq:       b.nextSeq,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	b.nextSeq++

	if b.size < b.capacity {
		b.entries[(b.start+b.size)%b.capacity] = entry
		b.size++
	} else {
		b.entries[b.start] = entry
		b.start = (b.start + 1) % b.capacity
		b.dropped++
	}
	return entry
}

// GetAll returns every stored entry, oldest first
func (b *LineBuffer) GetAll() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collectLocked(0)
}

// Since returns the stored entries with a sequence number greater than seq
func (b *LineBuffer) Since(seq uint64) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.collectLocked(seq)
}

func (b *LineBuffer) collectLocked(after uint64) []Entry {
	result := make([]Entry, 0, b.size)
	for i := 0; i < b.size; i++ {
		e := b.entries[(b.start+i)%b.capacity]
		if e.Seq > after {
			result = append(result, e)
		}
	}
	return result
}

// Lines returns the stored text, oldest first
func (b *LineBuffer) Lines() []string {
	entries := b.GetAll()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Text
	}
	return lines
}

// String joins the stored text without separators
func (b *LineBuffer) String() string {
	return strings.Join(b.Lines(), "")
}

// Clear removes all lines. Sequence numbers keep increasing.
func (b *LineBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make([]Entry, b.capacity)
	b.start = 0
	b.size = 0
}

// Count returns the number of stored lines
func (b *LineBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Dropped returns how many lines were overwritten because the buffer was full
func (b *LineBuffer) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Capacity returns the maximum number of stored lines
func (b *LineBuffer) Capacity() int {
	return b.capacity
}
