package remote

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// FsConnector serves shares from an afero filesystem: each top-level
// directory of Fs is a share. Used for local mirrors and tests.
type FsConnector struct {
	Fs afero.Fs
	// Accounts, when non-nil, maps user names to passwords. Guest access is
	// allowed only if Accounts is nil.
	Accounts map[string]string
}

// NewFsConnector returns a connector over fs that accepts any credentials.
func NewFsConnector(fs afero.Fs) *FsConnector {
	return &FsConnector{Fs: fs}
}

// NewLocalConnector serves the shares found under a local directory.
func NewLocalConnector(root string) *FsConnector {
	return NewFsConnector(afero.NewBasePathFs(afero.NewOsFs(), root))
}

func (c *FsConnector) Connect(ctx context.Context, ep Endpoint) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, Translate("dial", ep.Host, err)
	}
	if c.Accounts != nil {
		want, ok := c.Accounts[ep.Credentials.User]
		if !ok || ep.Credentials.IsGuest() || want != ep.Credentials.Password {
			return nil, Translate("authenticate", ep.Host, errAuthFailed)
		}
	}

	share := NormalizePath(ep.Share)
	if share == "" || strings.Contains(share, "/") {
		return nil, Translate("mount", ep.Share, errNoSuchShare)
	}
	info, err := c.Fs.Stat("/" + share)
	if err != nil || !info.IsDir() {
		return nil, Translate("mount", ep.Share, errNoSuchShare)
	}

	return &fsSession{fs: afero.NewBasePathFs(c.Fs, "/"+share)}, nil
}

var (
	errAuthFailed  = &statusError{code: statusLogonFailure, msg: "logon failure"}
	errNoSuchShare = &statusError{code: statusBadNetworkName, msg: "bad network name"}
)

// statusError lets non-SMB backends report a protocol status.
type statusError struct {
	code uint32
	msg  string
}

func (e *statusError) Error() string { return e.msg }

type fsSession struct {
	fs afero.Fs
}

func fsPath(name string) string {
	return path.Clean("/" + NormalizePath(name))
}

func (s *fsSession) ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, Translate("readdir", dir, err)
	}
	infos, err := afero.ReadDir(s.fs, fsPath(dir))
	if err != nil {
		return nil, Translate("readdir", dir, err)
	}
	return infos, nil
}

func (s *fsSession) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, Translate("stat", name, err)
	}
	info, err := s.fs.Stat(fsPath(name))
	if err != nil {
		return nil, Translate("stat", name, err)
	}
	return info, nil
}

func (s *fsSession) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := s.fs.Open(fsPath(name))
	if err != nil {
		return nil, Translate("open", name, err)
	}
	return &ctxReader{ctx: ctx, f: f}, nil
}

func (s *fsSession) Close() error { return nil }

// ctxReader fails reads once its context is done.
type ctxReader struct {
	ctx context.Context
	f   afero.File
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		if cause := context.Cause(r.ctx); cause != nil && !errors.Is(cause, err) {
			return 0, cause
		}
		return 0, err
	}
	return r.f.Read(p)
}

func (r *ctxReader) Close() error { return r.f.Close() }
