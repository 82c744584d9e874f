package remote

import (
	"context"
	"fmt"

	"github.com/retro/rshop/internal/events"
	"github.com/retro/rshop/internal/logging"
)

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Browser lists shares.
type Browser struct {
	connector Connector
	sink      events.Sink
	logger    *logging.Logger
}

// NewBrowser creates a browser using connector. Skipped subdirectories are
// reported to sink as warnings.
func NewBrowser(connector Connector, sink events.Sink, logger *logging.Logger) *Browser {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Browser{connector: connector, sink: sink, logger: logger}
}

// TestConnection connects, mounts the share and lists the endpoint root.
// Failures are reported in the result, never as an error.
func (b *Browser) TestConnection(ctx context.Context, ep Endpoint) ConnectionResult {
	session, err := b.connector.Connect(ctx, ep)
	if err != nil {
		b.logger.Debug().Err(err).Str("host", ep.Host).Str("share", ep.Share).Msg("Connection test failed")
		return ConnectionResult{Error: Reason(err)}
	}
	defer b.closeSession(session)

	if _, err := session.ReadDir(ctx, NormalizePath(ep.Root)); err != nil {
		b.logger.Debug().Err(err).Str("root", ep.Root).Msg("Connection test could not list root")
		return ConnectionResult{Error: Reason(err)}
	}
	return ConnectionResult{Success: true}
}

// List returns the entries under dir. Directories are descended while the
// current depth is below maxDepth; depth 0 lists dir only. A subdirectory
// that cannot be listed is logged and skipped.
func (b *Browser) List(ctx context.Context, ep Endpoint, dir string, maxDepth int) ([]Entry, error) {
	session, err := b.connector.Connect(ctx, ep)
	if err != nil {
		return nil, err
	}
	defer b.closeSession(session)

	var entries []Entry
	if err := b.scan(ctx, session, NormalizePath(dir), "", maxDepth, 0, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (b *Browser) scan(ctx context.Context, session Session, dir, parent string, maxDepth, depth int, out *[]Entry) error {
	infos, err := session.ReadDir(ctx, dir)
	if err != nil {
		return err
	}

	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}

		entryPath := JoinPath(dir, name)
		entry := Entry{
			Name:        name,
			Path:        entryPath,
			IsDirectory: info.IsDir(),
			ParentPath:  parent,
		}
		if !info.IsDir() {
			entry.Size = info.Size()
		}
		*out = append(*out, entry)

		if !info.IsDir() || isHiddenName(name) || depth >= maxDepth {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("listing %s: %w", dir, err)
		}
		if err := b.scan(ctx, session, entryPath, JoinPath(parent, name), maxDepth, depth+1, out); err != nil {
			b.logger.Debug().Err(err).Str("path", entryPath).Msg("Skipping subdirectory that could not be listed")
			b.sink.Publish(events.NewLogEvent(events.WarnLevel, "Skipped subdirectory that could not be listed: "+entryPath, "list", err))
		}
	}
	return nil
}

func (b *Browser) closeSession(session Session) {
	if err := session.Close(); err != nil {
		b.logger.Debug().Err(err).Msg("Session close error")
	}
}
