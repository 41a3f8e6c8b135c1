package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"clipforge/internal/models"
)

const (
	minBarWidth = 10
	maxBarWidth = 40
)

// progressPrinter draws job snapshots. On a terminal it redraws one line;
// elsewhere it prints a line per state change.
type progressPrinter struct {
	w         io.Writer
	tty       bool
	width     int
	lastState models.JobState
}

func newProgressPrinter(f *os.File) *progressPrinter {
	p := &progressPrinter{w: f, width: maxBarWidth}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		p.tty = true
		if cols, _, err := term.GetSize(fd); err == nil {
			p.width = barWidth(cols)
		}
	}
	return p
}

// barWidth leaves room for the state label and percentage.
func barWidth(cols int) int {
	w := cols - 40
	if w < minBarWidth {
		return minBarWidth
	}
	if w > maxBarWidth {
		return maxBarWidth
	}
	return w
}

func (p *progressPrinter) Update(job models.Job) {
	if !p.tty {
		if job.State != p.lastState {
			fmt.Fprintf(p.w, "%s %s\n", job.ID, job.State)
		}
		p.lastState = job.State
		return
	}
	fmt.Fprintf(p.w, "\r%s %-22s", progressBar(job.Progress, p.width), job.State)
	p.lastState = job.State
}

// Done ends the redrawn line.
func (p *progressPrinter) Done() {
	if p.tty {
		fmt.Fprintln(p.w)
	}
}

func progressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return fmt.Sprintf("[%s%s] %3d%%",
		strings.Repeat("#", filled),
		strings.Repeat(".", width-filled),
		int(progress*100),
	)
}
