package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retro/rshop/internal/events"
)

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "b.txt", truncatePath("b.txt", 2))
	assert.Equal(t, "b.txt", truncatePath("dir/b.txt", 2))
	assert.Equal(t, "…/dir/b.txt", truncatePath("/out/dir/b.txt", 2))
}

func TestExtractBarPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	b := newExtractBar(&buf, "/tmp/game.zip", false)

	b.Handle(events.NewExtractEvent(0, 150, 0))
	b.Handle(events.NewExtractEvent(10, 150, 6))
	b.Handle(events.NewExtractEvent(100, 150, 66))
	b.Handle(events.NewExtractEvent(150, 150, 100))
	b.Handle(events.NewDownloadEvent("x", 1, 2, events.StatusProgress, ""))
	b.Finish(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Extracting game.zip: 0% (0 B / 150 B)", lines[0])
	assert.Equal(t, "Extracting game.zip: 100% (150 B / 150 B)", lines[2])
}

func TestExtractBarTerminal(t *testing.T) {
	var buf bytes.Buffer
	b := newExtractBar(&buf, "game.zip", true)
	b.Handle(events.NewExtractEvent(150, 150, 100))
	b.Finish(nil)
	assert.Contains(t, buf.String(), "Extracting game.zip")
}

func TestDownloadUIPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	u := newDownloadUI(&buf, false)
	assert.False(t, u.IsTerminal())

	ok := u.Track("t1", "dir/b.txt", "/out/b.txt")
	failed := u.Track("t2", "c.txt", "/out/c.txt")
	cancelled := u.Track("t3", "d.txt", "/out/d.txt")

	u.Handle(events.NewDownloadEvent("t1", 25, 50, events.StatusProgress, ""))
	u.Handle(events.NewDownloadEvent("t1", 50, 50, events.StatusComplete, ""))
	u.Handle(events.NewDownloadEvent("t2", 0, 10, events.StatusError, "Path not found on the server."))
	u.Handle(events.NewDownloadEvent("t3", 5, 10, events.StatusCancelled, ""))
	u.Handle(events.NewDownloadEvent("other", 1, 1, events.StatusComplete, ""))
	u.Wait()

	for _, fb := range []*DownloadFileBar{ok, failed, cancelled} {
		select {
		case <-fb.Done():
		default:
			t.Fatalf("bar %s not done", fb.id)
		}
	}

	out := buf.String()
	assert.Contains(t, out, "Downloading …/out/b.txt ← dir/b.txt")
	assert.Contains(t, out, "✓ …/out/b.txt ← dir/b.txt (50 B")
	assert.Contains(t, out, "✗ …/out/c.txt ← c.txt: Path not found on the server.")
	assert.Contains(t, out, "– …/out/d.txt ← d.txt: cancelled after 5 B")
}
