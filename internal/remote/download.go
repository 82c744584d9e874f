package remote

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/retro/rshop/internal/constants"
	"github.com/retro/rshop/internal/diskspace"
	"github.com/retro/rshop/internal/errkind"
	"github.com/retro/rshop/internal/events"
	"github.com/retro/rshop/internal/logging"
	"github.com/retro/rshop/internal/transfer"
)

// Job describes one file transfer.
type Job struct {
	ID         string
	RemotePath string
	LocalPath  string

	// Release runs once the remote session is closed and the partial file
	// is gone, right before the terminal event is published.
	Release func(Result)
}

// Result is the terminal outcome of a download. The same outcome is
// published to the sink as the last event for the job.
type Result struct {
	Status       events.DownloadStatus
	BytesWritten int64
	TotalBytes   int64
	Err          error
}

// DownloadOptions tunes a Downloader. Zero values select the defaults.
type DownloadOptions struct {
	InactivityTimeout time.Duration
	ProgressInterval  time.Duration
	BufferSize        int
	// SafetyMargin multiplies the remote size for the free-space check.
	// Negative disables the check.
	SafetyMargin float64
}

// Downloader streams single files from a share to local storage.
type Downloader struct {
	connector Connector
	sink      events.Sink
	logger    *logging.Logger
	opts      DownloadOptions
}

// NewDownloader creates a downloader publishing to sink.
func NewDownloader(connector Connector, sink events.Sink, logger *logging.Logger, opts DownloadOptions) *Downloader {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = constants.InactivityTimeout
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = constants.ProgressInterval
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = constants.ReadBufferSize
	}
	if opts.SafetyMargin == 0 {
		opts.SafetyMargin = constants.DiskSpaceSafetyMargin
	}
	return &Downloader{connector: connector, sink: sink, logger: logger, opts: opts}
}

// Download runs one transfer to completion. cancel is polled between chunk
// reads; ctx cancellation is treated the same way. Exactly one terminal
// event is published. Before it goes out the remote session is closed, the
// partial local file of a cancelled or failed transfer is removed and
// job.Release is called.
func (d *Downloader) Download(ctx context.Context, ep Endpoint, job Job, cancel *transfer.Flag) Result {
	if cancel == nil {
		cancel = &transfer.Flag{}
	}
	log := d.logger.With().Str("download_id", job.ID).Str("remote", job.RemotePath).Logger()

	var written, total int64
	created := false

	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}
	defer release()

	finish := func(status events.DownloadStatus, err error) Result {
		release()
		if status != events.StatusComplete && created {
			if rmErr := os.Remove(job.LocalPath); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Debug().Err(rmErr).Str("local", job.LocalPath).Msg("Partial file cleanup failed")
			}
		}
		msg := ""
		switch status {
		case events.StatusError:
			msg = Reason(err)
			log.Error().Err(err).Int64("bytes", written).Msg("Download failed")
		case events.StatusCancelled:
			log.Info().Int64("bytes", written).Msg("Download cancelled")
		case events.StatusComplete:
			log.Info().Int64("bytes", written).Msg("Download complete")
		}
		res := Result{Status: status, BytesWritten: written, TotalBytes: total, Err: err}
		if job.Release != nil {
			job.Release(res)
		}
		d.sink.Publish(events.NewDownloadEvent(job.ID, written, total, status, msg))
		return res
	}

	isCancelled := func() bool {
		return cancel.IsSet() || ctx.Err() != nil
	}
	if isCancelled() {
		return finish(events.StatusCancelled, nil)
	}

	session, err := d.connector.Connect(ctx, ep)
	if err != nil {
		if isCancelled() {
			return finish(events.StatusCancelled, nil)
		}
		return finish(events.StatusError, err)
	}
	closers = append(closers, func() {
		if err := session.Close(); err != nil {
			log.Debug().Err(err).Msg("Session close error")
		}
	})

	remotePath := NormalizePath(job.RemotePath)
	info, err := session.Stat(ctx, remotePath)
	if err != nil {
		return finish(events.StatusError, err)
	}
	if info.IsDir() {
		return finish(events.StatusError,
			errkind.WithReason(errkind.InvalidArguments, "stat", remotePath, ReasonRemoteIsDir, nil))
	}
	total = info.Size()

	if d.opts.SafetyMargin > 0 {
		if err := diskspace.CheckAvailableSpace(job.LocalPath, total, d.opts.SafetyMargin); err != nil {
			return finish(events.StatusError, errkind.New(errkind.IO, "check space", job.LocalPath, err))
		}
	}

	wctx, wd := newWatchdog(ctx, d.opts.InactivityTimeout)
	closers = append(closers, wd.Stop)

	src, err := session.Open(wctx, remotePath)
	if err != nil {
		return finish(events.StatusError, err)
	}
	closers = append(closers, func() { _ = src.Close() })

	if err := os.MkdirAll(filepath.Dir(job.LocalPath), 0755); err != nil {
		return finish(events.StatusError, errkind.New(errkind.IO, "mkdir", filepath.Dir(job.LocalPath), err))
	}
	out, err := os.Create(job.LocalPath)
	if err != nil {
		return finish(events.StatusError, errkind.New(errkind.IO, "create", job.LocalPath, err))
	}
	created = true

	status, err := d.copy(wctx, wd, src, out, &written, total, job.ID, isCancelled)

	closeErr := out.Close()
	if status == events.StatusComplete && closeErr != nil {
		status, err = events.StatusError, errkind.New(errkind.IO, "close", job.LocalPath, closeErr)
	}
	return finish(status, err)
}

func (d *Downloader) copy(wctx context.Context, wd *watchdog, src io.Reader, out *os.File, written *int64, total int64, id string, isCancelled func() bool) (events.DownloadStatus, error) {
	bw := bufio.NewWriterSize(out, constants.WriteBufferSize)
	buf := make([]byte, d.opts.BufferSize)

	now := time.Now()
	lastData, lastProgress := now, now

	for {
		if isCancelled() {
			return events.StatusCancelled, nil
		}
		if stalled(wctx) || time.Since(lastData) > d.opts.InactivityTimeout {
			return events.StatusError, stallError(id, d.opts.InactivityTimeout.Seconds())
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := bw.Write(buf[:n]); err != nil {
				return events.StatusError, errkind.New(errkind.IO, "write", out.Name(), err)
			}
			*written += int64(n)
			lastData = time.Now()
			wd.Kick()

			if lastData.Sub(lastProgress) >= d.opts.ProgressInterval {
				lastProgress = lastData
				d.sink.Publish(events.NewDownloadEvent(id, *written, total, events.StatusProgress, ""))
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			switch {
			case stalled(wctx):
				return events.StatusError, stallError(id, d.opts.InactivityTimeout.Seconds())
			case isCancelled():
				return events.StatusCancelled, nil
			}
			return events.StatusError, Translate("read", id, readErr)
		}
	}

	if err := bw.Flush(); err != nil {
		return events.StatusError, errkind.New(errkind.IO, "write", out.Name(), err)
	}
	return events.StatusComplete, nil
}
