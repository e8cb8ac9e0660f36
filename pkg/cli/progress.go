package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ProgressReporter reports progress over a known number of items.
type ProgressReporter interface {
	Start(total int)
	Update(current int)
	Finish()
	Error(err error)
}

// SimpleProgress is a single-line text progress bar.
type SimpleProgress struct {
	mu      sync.Mutex
	total   int
	current int
	failed  int
	writer  io.Writer
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{writer: w}
}

// Start initializes the progress reporter with the total number of items.
func (p *SimpleProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.failed = 0
	p.render()
}

// Update updates the current progress.
func (p *SimpleProgress) Update(current int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	p.render()
}

// Finish marks the progress as complete.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render()
	if p.total > 0 {
		fmt.Fprintln(p.writer)
	}
}

// Error reports a failed item. The bar keeps going.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed++
	fmt.Fprintf(p.writer, "\n✗ %v\n", err)
	p.render()
}

func (p *SimpleProgress) render() {
	if p.total == 0 {
		return
	}

	const barWidth = 30
	filled := barWidth * p.current / p.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\rCompiling: [%s] %d/%d", bar, p.current, p.total)
	if p.failed > 0 {
		fmt.Fprintf(p.writer, " (%d failed)", p.failed)
	}
}
