// Package history keeps the most recent tick lines in memory and answers
// "last n" queries for the query surface.
package history

// DefaultCapacity is the number of lines kept when no capacity is configured.
const DefaultCapacity = 100

// Buffer is a fixed-capacity ring of lines ordered most-recent-first. Pushing
// into a full buffer evicts the oldest line. It is not safe for concurrent
// use; the Cache unit is its only owner.
type Buffer struct {
	lines []string
	head  int // index of the most recent line
	n     int
}

// NewBuffer returns an empty buffer holding at most capacity lines.
// A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{lines: make([]string, capacity), head: capacity - 1}
}

// Push inserts line at the front.
func (b *Buffer) Push(line string) {
	b.head = (b.head + 1) % len(b.lines)
	b.lines[b.head] = line
	if b.n < len(b.lines) {
		b.n++
	}
}

// Last returns up to n lines, most recent first. The result is a copy.
func (b *Buffer) Last(n int) []string {
	if n > b.n {
		n = b.n
	}
	if n <= 0 {
		return []string{}
	}
	out := make([]string, n)
	for i := range n {
		out[i] = b.lines[(b.head-i+len(b.lines))%len(b.lines)]
	}
	return out
}

func (b *Buffer) Len() int { return b.n }
func (b *Buffer) Cap() int { return len(b.lines) }
