package ui

import (
	"fmt"
	"io"
	"sync"
)

// Progress shows a single, continuously rewritten status line such as
// "GET https://bbs.example.com/rest/api/1.0/...". It is a no-op when
// disabled, which is the case whenever stderr is not a terminal.
type Progress struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	width   int
	shown   bool
}

// NewProgress returns a Progress writing to out.
func NewProgress(out io.Writer, enabled bool) *Progress {
	return &Progress{out: out, enabled: enabled, width: 100}
}

// SetWidth limits the status line to n columns.
func (p *Progress) SetWidth(n int) {
	if n > 0 {
		p.width = n
	}
}

// Title replaces the status line.
func (p *Progress) Title(title string) {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(title) > p.width {
		title = title[:p.width-1] + "…"
	}
	fmt.Fprintf(p.out, "\r\033[K%s", RenderMuted(title))
	p.shown = true
}

// Clear erases the status line.
func (p *Progress) Clear() {
	if p == nil || !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shown {
		fmt.Fprint(p.out, "\r\033[K")
		p.shown = false
	}
}

// Println prints a permanent line above the status line.
func (p *Progress) Println(line string) {
	if p == nil {
		return
	}
	p.Clear()
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// Track shows title while fn runs.
func (p *Progress) Track(title string, fn func() error) error {
	p.Title(title)
	defer p.Clear()
	return fn()
}

// Write prints p above the status line so that Progress can serve as a
// console writer.
func (p *Progress) Write(b []byte) (int, error) {
	p.Clear()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}
