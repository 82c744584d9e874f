// Package progress renders download and extract events on a terminal.
// When the output is not a terminal, plain status lines are printed
// instead of bars.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/retro/rshop/internal/events"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ExtractBar renders extraction progress as a single byte bar.
type ExtractBar struct {
	out        io.Writer
	name       string
	isTerminal bool
	bar        *progressbar.ProgressBar
	lastLine   int
}

// NewExtractBar creates a bar for the archive at path writing to stderr.
func NewExtractBar(path string) *ExtractBar {
	isTerminal := IsTerminal(os.Stderr)
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
	}
	return newExtractBar(os.Stderr, path, isTerminal)
}

func newExtractBar(out io.Writer, path string, isTerminal bool) *ExtractBar {
	return &ExtractBar{out: out, name: filepath.Base(path), isTerminal: isTerminal, lastLine: -1}
}

// Handle applies one event. Events of other types are ignored.
func (b *ExtractBar) Handle(e events.Event) {
	ev, ok := e.(*events.ExtractEvent)
	if !ok {
		return
	}

	if !b.isTerminal {
		// one line per 10%
		if step := ev.Percent / 10; step != b.lastLine {
			b.lastLine = step
			fmt.Fprintf(b.out, "Extracting %s: %d%% (%s / %s)\n", b.name, ev.Percent, formatBytes(ev.Extracted), formatBytes(ev.Total))
		}
		return
	}

	if b.bar == nil {
		b.bar = progressbar.NewOptions64(ev.Total,
			progressbar.OptionSetDescription("Extracting "+b.name),
			progressbar.OptionSetWriter(b.out),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(50),
			progressbar.OptionThrottle(100),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(b.out, "\n")
			}),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	_ = b.bar.Set64(ev.Extracted)
}

// Finish completes the bar when the run succeeded, or clears it.
func (b *ExtractBar) Finish(err error) {
	if b.bar != nil {
		if err == nil {
			_ = b.bar.Finish()
		} else {
			_ = b.bar.Exit()
			fmt.Fprint(b.out, "\n")
		}
	}
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// truncatePath keeps the last maxComponents path elements.
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
