package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter redraws a single status line with the remaining time until Stop.
//
// Usage:
//
//	p := NewCountdownPrinter(out, "Scanning", 3*time.Second)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use.
type ProgressPrinter struct {
	out      io.Writer
	prefix   string
	duration time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

// NewCountdownPrinter creates a printer counting down from duration.
// A zero duration shows elapsed time instead.
func NewCountdownPrinter(out io.Writer, prefix string, duration time.Duration) *ProgressPrinter {
	return &ProgressPrinter{
		out:      out,
		prefix:   prefix,
		duration: duration,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins redrawing the line in a background goroutine
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		start := time.Now()
		fmt.Fprintf(p.out, "\r%s...   ", p.prefix)

		go func() {
			defer close(p.done)
			ticker := time.NewTicker(progressUpdateInterval)
			defer ticker.Stop()

			for {
				select {
				case <-p.stopChan:
					return
				case <-ticker.C:
					fmt.Fprintf(p.out, "\r%s (%ds)   ", p.prefix, p.seconds(time.Since(start)))
				}
			}
		}()
	})
}

// seconds returns the number to display: remaining time rounded to the nearest second, or elapsed time
func (p *ProgressPrinter) seconds(elapsed time.Duration) int {
	if p.duration <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds() + 0.5)
}

// Stop ends the redraw loop and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		// never started: nothing to wait for
		p.startOnce.Do(func() { close(p.done) })
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}
