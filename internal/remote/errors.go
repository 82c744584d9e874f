package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hirochachacha/go-smb2"

	"github.com/retro/rshop/internal/constants"
	"github.com/retro/rshop/internal/errkind"
)

// NT_STATUS codes the translation cares about. [MS-ERREF] 2.3
const (
	statusNoSuchFile           uint32 = 0xC000000F
	statusAccessDenied         uint32 = 0xC0000022
	statusObjectNameNotFound   uint32 = 0xC0000034
	statusObjectPathNotFound   uint32 = 0xC000003A
	statusLogonFailure         uint32 = 0xC000006D
	statusAccountRestriction   uint32 = 0xC000006E
	statusPasswordExpired      uint32 = 0xC0000071
	statusAccountDisabled      uint32 = 0xC0000072
	statusBadNetworkName       uint32 = 0xC00000CC
	statusNetworkAccessDenied  uint32 = 0xC00000CA
	statusAccountLockedOut     uint32 = 0xC0000234
	statusNetworkNameDeleted   uint32 = 0xC00000C9
	statusUserSessionDeleted   uint32 = 0xC0000203
	statusConnectionDisconnect uint32 = 0xC000020C
)

// User-facing reasons.
const (
	ReasonAccessDenied   = "Access denied. Check your username and password."
	ReasonShareNotFound  = "Share not found. Check the share name."
	ReasonAuthFailed     = "Authentication failed. Check your credentials."
	ReasonPathNotFound   = "Path not found on the server."
	ReasonNotReachable   = "Server not reachable. Check host and port."
	ReasonCannotConnect  = "Cannot connect to server. Check host and port."
	ReasonRemoteIsDir    = "Remote path is a directory."
	reasonConnectTimeout = "Connection timeout after %d seconds."
	reasonStalled        = "Download stalled - no data received for %d seconds"
)

// ErrStalled is the cause recorded when the inactivity window elapses.
var ErrStalled = errors.New("download stalled")

// stallError builds the StallError for a given inactivity window.
func stallError(path string, window float64) error {
	return errkind.WithReason(errkind.Stall, "read", path,
		fmt.Sprintf(reasonStalled, int(window)), ErrStalled)
}

// Translate classifies a protocol or transport error and attaches the
// user-facing reason. Errors that are already classified pass through.
// Unrecognized errors keep their raw message.
func Translate(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var classified *errkind.Error
	if errors.As(err, &classified) {
		return err
	}

	var respErr *smb2.ResponseError
	if errors.As(err, &respErr) {
		return statusToError(op, path, respErr.Code, err)
	}
	var stErr *statusError
	if errors.As(err, &stErr) {
		return statusToError(op, path, stErr.code, err)
	}

	if errors.Is(err, ErrStalled) {
		return errkind.WithReason(errkind.Stall, op, path,
			fmt.Sprintf(reasonStalled, int(constants.InactivityTimeout.Seconds())), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return errkind.WithReason(errkind.ConnectionError, op, path,
			fmt.Sprintf(reasonConnectTimeout, int(constants.ConnectTimeout.Seconds())), err)
	}

	var transportErr *smb2.TransportError
	if errors.As(err, &transportErr) {
		return errkind.WithReason(errkind.ConnectionError, op, path, ReasonNotReachable, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return errkind.WithReason(errkind.ConnectionError, op, path, ReasonCannotConnect, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return errkind.WithReason(errkind.ConnectionError, op, path, ReasonCannotConnect, err)
	}

	if errors.Is(err, os.ErrNotExist) {
		return errkind.WithReason(errkind.NotFound, op, path, ReasonPathNotFound, err)
	}
	if errors.Is(err, os.ErrPermission) {
		return errkind.WithReason(errkind.AccessDenied, op, path, ReasonAccessDenied, err)
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return errkind.WithReason(errkind.ConnectionError, op, path,
			fmt.Sprintf(reasonConnectTimeout, int(constants.ConnectTimeout.Seconds())), err)
	}

	return errkind.WithReason(errkind.Of(err), op, path, err.Error(), err)
}

func statusToError(op, path string, code uint32, err error) error {
	kind, reason := translateStatus(code)
	if reason == "" {
		reason = fmt.Sprintf("SMB error: 0x%08X - %s", code, err.Error())
	}
	return errkind.WithReason(kind, op, path, reason, err)
}

func translateStatus(code uint32) (errkind.Kind, string) {
	switch code {
	case statusAccessDenied, statusNetworkAccessDenied:
		return errkind.AccessDenied, ReasonAccessDenied
	case statusBadNetworkName, statusNetworkNameDeleted:
		return errkind.NotFound, ReasonShareNotFound
	case statusLogonFailure, statusAccountRestriction, statusPasswordExpired,
		statusAccountDisabled, statusAccountLockedOut:
		return errkind.Authentication, ReasonAuthFailed
	case statusObjectNameNotFound, statusObjectPathNotFound, statusNoSuchFile:
		return errkind.NotFound, ReasonPathNotFound
	case statusUserSessionDeleted, statusConnectionDisconnect:
		return errkind.ConnectionError, ReasonNotReachable
	default:
		return errkind.Unknown, ""
	}
}

// Reason returns the user-facing reason for any error.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var classified *errkind.Error
	if !errors.As(err, &classified) {
		err = Translate("", "", err)
	}
	reason := errkind.Reason(err)
	if reason == "" {
		return "Unknown SMB error"
	}
	return reason
}
