package remote

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/retro/rshop/internal/constants"
)

// smbGuestUser is the account name servers expect for guest sessions.
const smbGuestUser = "Guest"

// SMBConnector connects to SMB2/3 servers.
type SMBConnector struct {
	// ConnectTimeout bounds the TCP dial and the session setup.
	ConnectTimeout time.Duration
	// ReadTimeout is the socket read deadline applied to every read.
	ReadTimeout time.Duration
}

// NewSMBConnector returns a connector with the default timeouts.
func NewSMBConnector() *SMBConnector {
	return &SMBConnector{
		ConnectTimeout: constants.ConnectTimeout,
		ReadTimeout:    constants.ReadTimeout,
	}
}

// Connect dials the host, authenticates and mounts the share.
func (c *SMBConnector) Connect(ctx context.Context, ep Endpoint) (Session, error) {
	connectTimeout := c.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = constants.ConnectTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	addr := net.JoinHostPort(ep.Host, strconv.Itoa(ep.PortOrDefault()))
	var nd net.Dialer
	conn, err := nd.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, Translate("dial", addr, err)
	}
	tc := &deadlineConn{Conn: conn, timeout: c.ReadTimeout}

	user, password := ep.Credentials.User, ep.Credentials.Password
	if ep.Credentials.IsGuest() {
		user, password = smbGuestUser, ""
	}
	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     user,
			Password: password,
			Domain:   ep.Credentials.Domain,
		},
	}

	session, err := d.DialContext(dialCtx, tc)
	if err != nil {
		conn.Close()
		return nil, Translate("authenticate", addr, err)
	}

	share, err := session.Mount(ep.Share)
	if err != nil {
		session.Logoff()
		conn.Close()
		return nil, Translate("mount", ep.Share, err)
	}

	return &smbSession{conn: conn, session: session, share: share}, nil
}

type smbSession struct {
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
}

func (s *smbSession) ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error) {
	infos, err := s.share.WithContext(ctx).ReadDir(dir)
	if err != nil {
		return nil, Translate("readdir", dir, err)
	}
	return infos, nil
}

func (s *smbSession) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	info, err := s.share.WithContext(ctx).Stat(name)
	if err != nil {
		return nil, Translate("stat", name, err)
	}
	return info, nil
}

func (s *smbSession) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := s.share.WithContext(ctx).Open(name)
	if err != nil {
		return nil, Translate("open", name, err)
	}
	return f, nil
}

// Close tears down in order: unmount, logoff, transport.
func (s *smbSession) Close() error {
	var errs []error
	if err := s.share.Umount(); err != nil {
		errs = append(errs, err)
	}
	if err := s.session.Logoff(); err != nil {
		errs = append(errs, err)
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// deadlineConn applies a fresh read deadline before every read.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}
