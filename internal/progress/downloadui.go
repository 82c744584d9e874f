package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/retro/rshop/internal/events"
)

// DownloadUI renders one mpb bar per tracked download.
type DownloadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool

	mu   sync.Mutex
	bars map[string]*DownloadFileBar
}

// DownloadFileBar is the bar of one download.
type DownloadFileBar struct {
	bar        *mpb.Bar
	ui         *DownloadUI
	id         string
	remoteName string
	localPath  string
	startTime  time.Time
	lastUpdate time.Time
	total      int64
	done       chan struct{}
}

// NewDownloadUI creates a UI writing to stderr.
func NewDownloadUI() *DownloadUI {
	isTerminal := IsTerminal(os.Stderr)
	if isTerminal {
		enableANSIOnWindows(os.Stderr)
	}
	return newDownloadUI(os.Stderr, isTerminal)
}

func newDownloadUI(out io.Writer, isTerminal bool) *DownloadUI {
	u := &DownloadUI{out: out, isTerminal: isTerminal, bars: make(map[string]*DownloadFileBar)}
	if isTerminal {
		u.progress = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	}
	return u
}

// Track registers a download so its events are rendered. The returned
// bar's Done channel closes on the terminal event.
func (u *DownloadUI) Track(id, remoteName, localPath string) *DownloadFileBar {
	fb := &DownloadFileBar{
		ui:         u,
		id:         id,
		remoteName: remoteName,
		localPath:  localPath,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
		done:       make(chan struct{}),
	}

	if u.isTerminal {
		label := fmt.Sprintf("%s ← %s", truncatePath(localPath, 2), remoteName)
		fb.bar = u.progress.New(0,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(label, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Name("ETA ", decor.WCSyncWidth),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Downloading %s ← %s\n", truncatePath(localPath, 2), remoteName)
	}

	u.mu.Lock()
	u.bars[id] = fb
	u.mu.Unlock()
	return fb
}

// Done is closed once the download reached a terminal status.
func (f *DownloadFileBar) Done() <-chan struct{} {
	return f.done
}

// Handle applies one event to the matching bar. Untracked downloads and
// other event types are ignored.
func (u *DownloadUI) Handle(e events.Event) {
	ev, ok := e.(*events.DownloadEvent)
	if !ok {
		return
	}
	u.mu.Lock()
	fb, ok := u.bars[ev.DownloadID]
	if ok && ev.Status.IsTerminal() {
		delete(u.bars, ev.DownloadID)
	}
	u.mu.Unlock()
	if !ok {
		return
	}

	if ev.Status.IsTerminal() {
		fb.complete(ev)
		return
	}
	fb.update(ev.BytesWritten, ev.TotalBytes)
}

func (f *DownloadFileBar) update(written, total int64) {
	if f.bar == nil {
		return
	}
	now := time.Now()
	if total != f.total {
		f.total = total
		f.bar.SetTotal(total, false)
	}
	f.bar.EwmaSetCurrent(written, now.Sub(f.lastUpdate))
	f.lastUpdate = now
}

func (f *DownloadFileBar) complete(ev *events.DownloadEvent) {
	defer close(f.done)

	elapsed := time.Since(f.startTime)
	var msg string
	switch ev.Status {
	case events.StatusComplete:
		if f.bar != nil {
			f.bar.SetTotal(ev.TotalBytes, false)
			f.bar.SetCurrent(ev.TotalBytes)
			f.bar.SetTotal(-1, true)
		}
		speed := float64(ev.BytesWritten) / elapsed.Seconds()
		msg = fmt.Sprintf("✓ %s ← %s (%s, %s, %s/s)\n",
			truncatePath(f.localPath, 2), f.remoteName, formatBytes(ev.BytesWritten),
			elapsed.Round(time.Second), formatBytes(int64(speed)))
	case events.StatusCancelled:
		if f.bar != nil {
			f.bar.Abort(true)
		}
		msg = fmt.Sprintf("– %s ← %s: cancelled after %s\n",
			truncatePath(f.localPath, 2), f.remoteName, formatBytes(ev.BytesWritten))
	default:
		if f.bar != nil {
			f.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s ← %s: %s\n", truncatePath(f.localPath, 2), f.remoteName, ev.Error)
	}
	_, _ = io.WriteString(f.ui.Writer(), msg)
}

// Wait blocks until every bar has finished rendering.
func (u *DownloadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns a writer that prints above the bars.
func (u *DownloadUI) Writer() io.Writer {
	if u.progress != nil {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether bars are drawn.
func (u *DownloadUI) IsTerminal() bool {
	return u.isTerminal
}
