package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/retro/rshop/internal/archive"
	"github.com/retro/rshop/internal/config"
	"github.com/retro/rshop/internal/diskspace"
	"github.com/retro/rshop/internal/errkind"
	"github.com/retro/rshop/internal/events"
	"github.com/retro/rshop/internal/logging"
	"github.com/retro/rshop/internal/metrics"
	"github.com/retro/rshop/internal/pool"
	"github.com/retro/rshop/internal/remote"
	"github.com/retro/rshop/internal/transfer"
)

// Options wires an SMBService. Nil fields select defaults: an SMB connector
// built from Config, a fresh event bus and the built-in config.
type Options struct {
	Connector remote.Connector
	EventBus  *events.EventBus
	Config    *config.Config
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// SMBService owns the cancellation registry, the task pool and the engines.
// It is frontend-agnostic: progress reaches callers only through the
// EventBus.
type SMBService struct {
	cfg      *config.Config
	bus      *events.EventBus
	registry *transfer.Registry
	pool     *pool.Pool
	metrics  *metrics.Metrics
	logger   *logging.Logger
	defaults RemoteDefaults
	ownsBus  bool

	browser    *remote.Browser
	downloader *remote.Downloader
	extractor  *archive.Extractor
}

// NewSMBService creates the service and starts its worker pool.
func NewSMBService(opts Options) *SMBService {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	bus, ownsBus := opts.EventBus, false
	if bus == nil {
		bus, ownsBus = events.NewEventBus(0), true
	}
	connector := opts.Connector
	if connector == nil {
		connector = &remote.SMBConnector{
			ConnectTimeout: cfg.ConnectTimeout(),
			ReadTimeout:    cfg.ReadTimeout(),
		}
	}

	return &SMBService{
		cfg:      cfg,
		bus:      bus,
		registry: transfer.NewRegistry(),
		pool:     pool.New(cfg.Pool.Workers, 0, logger.Named("pool")),
		metrics:  opts.Metrics,
		logger:   logger,
		ownsBus:  ownsBus,
		defaults: RemoteDefaults{
			Port:   cfg.Remote.Port,
			User:   cfg.Remote.User,
			Domain: cfg.Remote.Domain,
		},
		browser: remote.NewBrowser(connector, bus, logger.Named("browse")),
		downloader: remote.NewDownloader(connector, bus, logger.Named("download"), remote.DownloadOptions{
			InactivityTimeout: cfg.InactivityTimeout(),
			ProgressInterval:  cfg.ProgressInterval(),
			BufferSize:        int(cfg.Download.BufferSize),
		}),
		extractor: archive.NewExtractor(bus, logger.Named("extract"), archive.Options{
			MaxBytes: cfg.Extract.MaxBytes,
		}),
	}
}

// EventBus returns the bus carrying download and extract progress.
func (s *SMBService) EventBus() *events.EventBus {
	return s.bus
}

// TestConnection connects, authenticates and lists the configured path.
// Failures are reported in the result; only invalid arguments or a
// rejected submission are returned as errors.
func (s *SMBService) TestConnection(ctx context.Context, args ConnectionArgs) (remote.ConnectionResult, error) {
	if err := args.Validate(); err != nil {
		return remote.ConnectionResult{}, err
	}
	ep := args.endpoint(s.defaults)

	res, err := pool.Run(ctx, s.pool, func(workerCtx context.Context) (remote.ConnectionResult, error) {
		opCtx, stop := joinContext(ctx, workerCtx)
		defer stop()
		return s.browser.TestConnection(opCtx, ep), nil
	})
	if err != nil {
		return remote.ConnectionResult{}, err
	}
	s.metrics.RemoteOp("test", resultLabel(res.Success))
	return res, nil
}

// ListFiles lists args.Path up to the requested depth.
func (s *SMBService) ListFiles(ctx context.Context, args ListArgs) ([]remote.Entry, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	ep := args.endpoint(s.defaults)
	depth := args.Depth()

	entries, err := pool.Run(ctx, s.pool, func(workerCtx context.Context) ([]remote.Entry, error) {
		opCtx, stop := joinContext(ctx, workerCtx)
		defer stop()
		return s.browser.List(opCtx, ep, args.Path, depth)
	})
	s.metrics.RemoteOp("list", resultLabel(err == nil))
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []remote.Entry{}
	}
	return entries, nil
}

// StartDownload registers the transfer and queues it. It returns as soon
// as the task is queued; the outcome arrives as download events.
func (s *SMBService) StartDownload(args DownloadArgs) error {
	if err := args.Validate(); err != nil {
		return err
	}
	ep := args.endpoint(s.defaults)

	task, flag, err := s.registry.Register(args.DownloadID, args.source(), args.OutputPath)
	if err != nil {
		if errors.Is(err, transfer.ErrDuplicateID) {
			return errkind.Invalid("download %s is already running", args.DownloadID)
		}
		return errkind.New(errkind.Unknown, "register", args.DownloadID, err)
	}

	var released atomic.Bool
	var start time.Time
	job := remote.Job{
		ID:         args.DownloadID,
		RemotePath: args.FilePath,
		LocalPath:  args.OutputPath,
		// the id is free again before the caller sees the terminal event
		Release: func(res remote.Result) {
			released.Store(true)
			task.SetState(taskState(res.Status))
			s.registry.Remove(args.DownloadID)
			s.metrics.DownloadFinished(string(res.Status), res.BytesWritten, time.Since(start).Seconds())
		},
	}
	err = s.pool.Submit(func(workerCtx context.Context) {
		defer func() {
			if !released.Load() {
				s.registry.Remove(job.ID)
			}
		}()

		s.metrics.DownloadStarted()
		start = time.Now()
		s.downloader.Download(workerCtx, ep, job, flag)
	})
	if err != nil {
		s.registry.Remove(job.ID)
		s.logger.Warn().Err(err).Str("download_id", job.ID).Msg("Download rejected")
		return errkind.New(errkind.Unknown, "submit", job.ID, err)
	}

	s.logger.Info().Str("download_id", job.ID).Str("source", task.Source).Msg("Download queued")
	return nil
}

// CancelDownload raises the cancellation flag of a running download.
// Unknown ids are ignored.
func (s *SMBService) CancelDownload(args CancelArgs) error {
	if args.DownloadID == "" {
		return errkind.Invalid("downloadId is required")
	}
	if !s.registry.Cancel(args.DownloadID) {
		s.logger.Debug().Str("download_id", args.DownloadID).Msg("Cancel for unknown download ignored")
	}
	return nil
}

// ActiveDownloads returns the registered transfers, oldest first.
func (s *SMBService) ActiveDownloads() []transfer.TransferTask {
	return s.registry.Active()
}

// ExtractArchive unpacks an archive on the caller's goroutine and returns
// the names of the extracted files.
func (s *SMBService) ExtractArchive(ctx context.Context, args ExtractArgs) ([]string, error) {
	if err := args.Validate(); err != nil {
		return nil, err
	}
	job := archive.NewJob(args.ArchivePath, args.TargetPath)
	err := s.extractor.Run(ctx, job)

	extracted, _ := job.Progress()
	s.metrics.ExtractionFinished(string(job.State()), extracted)

	names := job.Entries()
	if names == nil {
		names = []string{}
	}
	return names, err
}

// FreeSpace reports the free and total bytes of the filesystem holding
// args.Path.
func (s *SMBService) FreeSpace(args FreeSpaceArgs) (diskspace.Usage, error) {
	if args.Path == "" {
		return diskspace.Usage{}, errkind.Invalid("path is required")
	}
	usage, err := diskspace.GetUsage(args.Path)
	if err != nil {
		return diskspace.Usage{}, errkind.New(errkind.IO, "statfs", args.Path, err)
	}
	return usage, nil
}

// Shutdown cancels every in-flight download and stops the pool, waiting up
// to the configured grace for queued tasks to drain.
func (s *SMBService) Shutdown() {
	active := s.registry.Len()
	s.registry.Shutdown()
	drained := s.pool.Shutdown(s.cfg.ShutdownGrace())
	if s.ownsBus {
		s.bus.Close()
	}
	s.logger.Info().Int("cancelled", active).Bool("drained", drained).Msg("Service stopped")
}

func taskState(status events.DownloadStatus) transfer.TaskState {
	switch status {
	case events.StatusComplete:
		return transfer.TaskCompleted
	case events.StatusCancelled:
		return transfer.TaskCancelled
	default:
		return transfer.TaskFailed
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// joinContext returns a context cancelled when either parent is.
func joinContext(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() { cancel(context.Cause(b)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
