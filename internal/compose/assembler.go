package compose

import (
	"fmt"
	"strings"
	"sync"
)

// Assembler concatenates chapters in spine order. Chapters may be added in
// any order and from several goroutines; a chapter is written out only once
// every chapter before it has arrived.
type Assembler struct {
	mu      sync.Mutex
	next    int
	pending map[int]Chapter
	out     strings.Builder
	written []Chapter
}

// NewAssembler returns an empty assembler expecting index 0 first.
func NewAssembler() *Assembler {
	return &Assembler{pending: make(map[int]Chapter)}
}

// Add buffers ch and flushes every chapter that is now in sequence.
func (a *Assembler) Add(ch Chapter) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ch.Index < a.next {
		return fmt.Errorf("compose: chapter %d already written", ch.Index)
	}
	if _, dup := a.pending[ch.Index]; dup {
		return fmt.Errorf("compose: chapter %d added twice", ch.Index)
	}
	a.pending[ch.Index] = ch

	for {
		next, ok := a.pending[a.next]
		if !ok {
			break
		}
		delete(a.pending, a.next)
		a.out.WriteString(next.HTML)
		a.written = append(a.written, next)
		a.next++
	}
	return nil
}

// Pending returns how many chapters are buffered waiting for a predecessor.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Written returns the chapters flushed so far, in spine order.
func (a *Assembler) Written() []Chapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Chapter, len(a.written))
	copy(out, a.written)
	return out
}

// String returns the concatenation of every flushed chapter.
func (a *Assembler) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.String()
}
