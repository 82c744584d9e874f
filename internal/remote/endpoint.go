// Package remote browses and downloads from a remote SMB share.
//
// Every operation opens its own connection, authenticates, mounts the share,
// does its work and tears the connection down again. Sessions are never
// reused across operations.
package remote

import (
	"context"
	"io"
	"io/fs"
	"strings"

	"github.com/retro/rshop/internal/constants"
)

// Credentials used to authenticate against the endpoint.
type Credentials struct {
	User     string
	Password string
	Domain   string
}

// IsGuest reports whether the credentials select guest access.
func (c Credentials) IsGuest() bool {
	return c.User == "" || strings.EqualFold(c.User, constants.GuestUser)
}

// Endpoint identifies a share on a remote host. Not persisted by this package.
type Endpoint struct {
	Host        string
	Port        int
	Share       string
	Root        string // path inside the share used by TestConnection
	Credentials Credentials
}

// PortOrDefault returns Port, or 445 when unset.
func (e Endpoint) PortOrDefault() int {
	if e.Port <= 0 {
		return constants.DefaultPort
	}
	return e.Port
}

// Entry is one item produced by a listing. Entries keep the remote listing
// order and are never modified after creation.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
	Size        int64  `json:"size"`
	ParentPath  string `json:"parentPath,omitempty"` // trail from the listing root, empty at depth 0
}

// Connector opens sessions against an endpoint.
type Connector interface {
	Connect(ctx context.Context, ep Endpoint) (Session, error)
}

// Session is a mounted share. Paths are share-relative with forward slashes;
// "" is the share root.
type Session interface {
	ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error)
	Stat(ctx context.Context, name string) (fs.FileInfo, error)
	// Open returns a reader whose reads are bound to ctx.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Close unmounts the share, logs off and closes the transport.
	Close() error
}

// NormalizePath turns a caller path into a share-relative path:
// "" and "/" select the share root, leading and trailing separators are
// dropped and backslashes become forward slashes.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.Trim(p, "/")
}

// JoinPath joins a share-relative directory and a child name.
func JoinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// NormalizeDepth resolves the listing depth from either a numeric depth or
// the legacy scan-subdirectories flag. A numeric depth wins when given.
func NormalizeDepth(maxDepth *int, scanSubdirs bool) int {
	if maxDepth != nil {
		if *maxDepth < 0 {
			return 0
		}
		return *maxDepth
	}
	if scanSubdirs {
		return 1
	}
	return 0
}

// isHiddenName reports whether a directory name starts with the hidden-file
// marker. "." and ".." are not hidden; they are skipped separately.
func isHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
