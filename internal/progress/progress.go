// Package progress reports export progress: a redrawn counter line on an
// interactive terminal, periodic log lines otherwise.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// redrawInterval limits how often the terminal line is rewritten.
const redrawInterval = 100 * time.Millisecond

// Counter tracks written and skipped records.
type Counter struct {
	mu sync.Mutex

	out      io.Writer
	tty      bool
	logger   zerolog.Logger
	logEvery int

	written   int
	skipped   int
	startTime time.Time
	lastDraw  time.Time
	now       func() time.Time
}

// New creates a counter drawing to out when it is a terminal, and logging
// every logEvery records otherwise (0 disables the log lines).
func New(out io.Writer, logger zerolog.Logger, logEvery int) *Counter {
	return &Counter{
		out:       out,
		tty:       isTerminal(out),
		logger:    logger,
		logEvery:  logEvery,
		startTime: time.Now(),
		now:       time.Now,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Record counts one record.
func (c *Counter) Record(written bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if written {
		c.written++
	} else {
		c.skipped++
	}

	if c.tty {
		if now := c.now(); now.Sub(c.lastDraw) >= redrawInterval {
			c.lastDraw = now
			c.draw()
		}
		return
	}

	if c.logEvery > 0 && (c.written+c.skipped)%c.logEvery == 0 {
		c.logger.Info().
			Int("written", c.written).
			Int("skipped", c.skipped).
			Float64("per_second", c.rate()).
			Msg("Export progress")
	}
}

// Finish draws the final counts and ends the terminal line.
func (c *Counter) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tty {
		c.draw()
		fmt.Fprintln(c.out)
	}
}

// Counts returns the written and skipped totals.
func (c *Counter) Counts() (written, skipped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written, c.skipped
}

func (c *Counter) draw() {
	fmt.Fprintf(c.out, "\rExported %d records (%d duplicates skipped) %.0f/s",
		c.written, c.skipped, c.rate())
}

// rate returns records handled per second since the counter was created.
func (c *Counter) rate() float64 {
	elapsed := c.now().Sub(c.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.written+c.skipped) / elapsed
}
