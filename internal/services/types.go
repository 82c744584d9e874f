// Package services is the command surface of rshop: it decodes argument
// bags, validates them before any I/O and runs the remote and archive
// engines on the background pool.
package services

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/retro/rshop/internal/errkind"
	"github.com/retro/rshop/internal/remote"
)

// ConnectionArgs identifies a share and the credentials to use.
type ConnectionArgs struct {
	Host   string `mapstructure:"host" json:"host"`
	Port   int    `mapstructure:"port" json:"port,omitempty"`
	Share  string `mapstructure:"share" json:"share"`
	Path   string `mapstructure:"path" json:"path,omitempty"`
	User   string `mapstructure:"user" json:"user,omitempty"`
	Pass   string `mapstructure:"pass" json:"-"`
	Domain string `mapstructure:"domain" json:"domain,omitempty"`
}

// ListArgs selects a directory and a depth. MaxDepth wins over the legacy
// ScanSubdirs flag when both are given.
type ListArgs struct {
	ConnectionArgs `mapstructure:",squash"`
	MaxDepth       *int `mapstructure:"maxDepth" json:"maxDepth,omitempty"`
	ScanSubdirs    bool `mapstructure:"scanSubdirs" json:"scanSubdirs,omitempty"`
}

// DownloadArgs starts one transfer.
type DownloadArgs struct {
	ConnectionArgs `mapstructure:",squash"`
	DownloadID     string `mapstructure:"downloadId" json:"downloadId"`
	FilePath       string `mapstructure:"filePath" json:"filePath"`
	OutputPath     string `mapstructure:"outputPath" json:"outputPath"`
}

// CancelArgs names the transfer to cancel.
type CancelArgs struct {
	DownloadID string `mapstructure:"downloadId" json:"downloadId"`
}

// ExtractArgs selects an archive and its destination.
type ExtractArgs struct {
	ArchivePath string `mapstructure:"archivePath" json:"archivePath"`
	TargetPath  string `mapstructure:"targetPath" json:"targetPath"`
}

// FreeSpaceArgs selects the path whose filesystem is queried.
type FreeSpaceArgs struct {
	Path string `mapstructure:"path" json:"path"`
}

// Decode fills out from a loosely typed argument bag such as a decoded
// JSON object. Numbers given as strings and vice versa are accepted.
func Decode(args map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return errkind.Invalid("invalid arguments: %v", err)
	}
	return nil
}

// Validate checks the required fields.
func (a ConnectionArgs) Validate() error {
	if strings.TrimSpace(a.Host) == "" {
		return errkind.Invalid("Host is required")
	}
	if strings.TrimSpace(a.Share) == "" {
		return errkind.Invalid("Share is required")
	}
	if a.Port < 0 || a.Port > 65535 {
		return errkind.Invalid("Port %d is out of range", a.Port)
	}
	return nil
}

// Validate checks the required fields.
func (a DownloadArgs) Validate() error {
	if a.DownloadID == "" {
		return errkind.Invalid("downloadId is required")
	}
	if err := a.ConnectionArgs.Validate(); err != nil {
		return err
	}
	if a.FilePath == "" {
		return errkind.Invalid("filePath is required")
	}
	if a.OutputPath == "" {
		return errkind.Invalid("outputPath is required")
	}
	return nil
}

// Validate checks the required fields.
func (a ExtractArgs) Validate() error {
	if a.ArchivePath == "" || a.TargetPath == "" {
		return errkind.Invalid("archivePath and targetPath are required")
	}
	return nil
}

// Depth resolves the listing depth.
func (a ListArgs) Depth() int {
	return remote.NormalizeDepth(a.MaxDepth, a.ScanSubdirs)
}

// endpoint builds the remote endpoint, filling unset fields from defaults.
func (a ConnectionArgs) endpoint(defaults RemoteDefaults) remote.Endpoint {
	ep := remote.Endpoint{
		Host:  strings.TrimSpace(a.Host),
		Port:  a.Port,
		Share: strings.TrimSpace(a.Share),
		Root:  a.Path,
		Credentials: remote.Credentials{
			User:     a.User,
			Password: a.Pass,
			Domain:   a.Domain,
		},
	}
	if ep.Port == 0 {
		ep.Port = defaults.Port
	}
	if ep.Credentials.User == "" {
		ep.Credentials.User = defaults.User
	}
	if ep.Credentials.Domain == "" {
		ep.Credentials.Domain = defaults.Domain
	}
	return ep
}

// source renders the remote descriptor recorded on a transfer task.
func (a DownloadArgs) source() string {
	return fmt.Sprintf(`\\%s\%s\%s`, a.Host, a.Share, remote.NormalizePath(a.FilePath))
}

// RemoteDefaults fill unset connection fields.
type RemoteDefaults struct {
	Port   int
	User   string
	Domain string
}
