package enocean

import (
	"sort"
	"sync"
	"time"

	"github.com/ESDN83/enocean-mqtt-core/internal/eep"
)

// DefaultBufferCapacity is the telegram history depth used when no
// capacity is configured.
const DefaultBufferCapacity = 200

// Entry is one ring buffer record: the raw telegram plus whatever the
// pipeline made of it.
type Entry struct {
	Telegram Telegram

	// Device is the registered device name, empty for unknown senders.
	Device string

	// Profile is the profile used to decode, zero when undecoded.
	Profile eep.ProfileID

	// Values holds the decoded fields; nil when decoding did not run
	// or failed entirely.
	Values map[string]Value

	// Degraded marks a partial decode with per-field failures.
	Degraded bool

	// TeachIn marks a teach-in announcement.
	TeachIn bool
}

// DeepCopy returns an independent copy of the entry.
func (e Entry) DeepCopy() Entry {
	out := e
	out.Telegram = e.Telegram.DeepCopy()
	if e.Values != nil {
		out.Values = make(map[string]Value, len(e.Values))
		for k, v := range e.Values {
			out.Values[k] = v
		}
	}
	return out
}

// Buffer is a fixed-capacity ring of recent telegram entries.
//
// Push overwrites the oldest entry once the buffer is full, strict
// FIFO. Reads return deep copies, so a snapshot is never affected by
// later pushes.
//
// Thread Safety: all methods are safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	count   int

	// unknown tracks senders never matched to a registered device.
	unknown map[uint32]time.Time
}

// NewBuffer creates a ring buffer. Capacity values below 1 fall back
// to DefaultBufferCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		entries: make([]Entry, capacity),
		unknown: make(map[uint32]time.Time),
	}
}

// Push records an entry, evicting the oldest when full.
func (b *Buffer) Push(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = e.DeepCopy()
	b.next = (b.next + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}

	if e.Device == "" {
		b.unknown[e.Telegram.SenderID] = e.Telegram.ReceivedAt
	} else {
		delete(b.unknown, e.Telegram.SenderID)
	}
}

// Len returns the number of entries currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the fixed buffer size.
func (b *Buffer) Capacity() int {
	return len(b.entries)
}

// Recent returns up to n entries, newest first, as deep copies.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return nil
	}

	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (b.next - i + len(b.entries)) % len(b.entries)
		out = append(out, b.entries[idx].DeepCopy())
	}
	return out
}

// Unknown returns the distinct sender addresses seen without a device
// match, ascending. An address drops off the list once a later entry
// attributes it to a registered device.
func (b *Buffer) Unknown() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]uint32, 0, len(b.unknown))
	for addr := range b.unknown {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
