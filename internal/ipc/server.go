package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/retro/rshop/internal/diskspace"
	"github.com/retro/rshop/internal/errkind"
	"github.com/retro/rshop/internal/events"
	"github.com/retro/rshop/internal/logging"
	"github.com/retro/rshop/internal/remote"
	"github.com/retro/rshop/internal/services"
	"github.com/retro/rshop/internal/transfer"
	"github.com/retro/rshop/internal/version"
)

// maxLineSize bounds a single request line.
const maxLineSize = 1024 * 1024

// Handler is the command surface served over IPC. *services.SMBService
// implements it.
type Handler interface {
	TestConnection(ctx context.Context, args services.ConnectionArgs) (remote.ConnectionResult, error)
	ListFiles(ctx context.Context, args services.ListArgs) ([]remote.Entry, error)
	StartDownload(args services.DownloadArgs) error
	CancelDownload(args services.CancelArgs) error
	ExtractArchive(ctx context.Context, args services.ExtractArgs) ([]string, error)
	FreeSpace(args services.FreeSpaceArgs) (diskspace.Usage, error)
	ActiveDownloads() []transfer.TransferTask
}

// DownloadInfo describes one registered download in an activeDownloads
// response.
type DownloadInfo struct {
	DownloadID string             `json:"downloadId"`
	Source     string             `json:"source"`
	OutputPath string             `json:"outputPath"`
	State      transfer.TaskState `json:"state"`
	StartedAt  time.Time          `json:"startedAt"`
}

// Server answers requests from one or more sessions and forwards download
// and extract events to every session.
type Server struct {
	handler Handler
	bus     *events.EventBus
	logger  *logging.Logger
}

// NewServer creates a server. bus is the bus the handler publishes to.
func NewServer(handler Handler, bus *events.EventBus, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{handler: handler, bus: bus, logger: logger}
}

// lineWriter serializes messages from request goroutines and the event
// forwarder onto one stream.
type lineWriter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger *logging.Logger
}

func (lw *lineWriter) write(v interface{}) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if err := lw.enc.Encode(v); err != nil {
		lw.logger.Warn().Err(err).Msg("Failed to send IPC message")
	}
}

// Serve runs one session: it reads requests from r until EOF or ctx is
// done, writes responses and events to w, and returns once every
// in-flight request has been answered.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &lineWriter{enc: json.NewEncoder(w), logger: s.logger}

	var observed <-chan struct{}
	if s.bus != nil {
		sub := s.bus.SubscribeAll()
		defer s.bus.UnsubscribeAll(sub)
		observed = events.Observe(ctx, sub, events.Direct, func(e events.Event) {
			msg, ok, err := NewEventMessage(e)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Failed to encode event")
				return
			}
			if ok {
				out.write(msg)
			}
		})
	}

	var wg sync.WaitGroup
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		req, err := DecodeRequest(line)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to decode IPC request")
			out.write(NewErrorResponse("", errkind.Invalid("invalid request format")))
			continue
		}

		s.logger.Debug().Str("id", req.ID).Str("method", req.Method).Msg("Received IPC request")
		wg.Add(1)
		go func() {
			defer wg.Done()
			out.write(s.handleRequest(ctx, req))
		}()
	}
	wg.Wait()

	cancel()
	if observed != nil {
		<-observed
	}
	return scanner.Err()
}

// handleRequest dispatches one request and never returns nil.
func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	result, err := s.dispatch(ctx, req)
	if err != nil {
		return NewErrorResponse(req.ID, err)
	}
	resp, err := NewResultResponse(req.ID, result)
	if err != nil {
		s.logger.Error().Err(err).Str("method", req.Method).Msg("Failed to encode IPC response")
		return NewErrorResponse(req.ID, errkind.New(errkind.Unknown, "encode", req.Method, err))
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, error) {
	switch req.Method {
	case MethodPing:
		return PingData{Version: version.Version}, nil

	case MethodTestConnection:
		var args services.ConnectionArgs
		if err := services.Decode(req.Args, &args); err != nil {
			return nil, err
		}
		return s.handler.TestConnection(ctx, args)

	case MethodListFiles:
		var args services.ListArgs
		if err := services.Decode(req.Args, &args); err != nil {
			return nil, err
		}
		return s.handler.ListFiles(ctx, args)

	case MethodStartDownload:
		var args services.DownloadArgs
		if err := services.Decode(req.Args, &args); err != nil {
			return nil, err
		}
		return nil, s.handler.StartDownload(args)

	case MethodCancelDownload:
		var args services.CancelArgs
		if err := services.Decode(req.Args, &args); err != nil {
			return nil, err
		}
		return nil, s.handler.CancelDownload(args)

	case MethodExtractArchive:
		var args services.ExtractArgs
		if err := services.Decode(req.Args, &args); err != nil {
			return nil, err
		}
		return s.handler.ExtractArchive(ctx, args)

	case MethodFreeSpace:
		var args services.FreeSpaceArgs
		if err := services.Decode(req.Args, &args); err != nil {
			return nil, err
		}
		return s.handler.FreeSpace(args)

	case MethodActiveDownloads:
		tasks := s.handler.ActiveDownloads()
		infos := make([]DownloadInfo, 0, len(tasks))
		for i := range tasks {
			t := &tasks[i]
			infos = append(infos, DownloadInfo{
				DownloadID: t.ID,
				Source:     t.Source,
				OutputPath: t.Dest,
				State:      t.State,
				StartedAt:  t.CreatedAt,
			})
		}
		return infos, nil

	default:
		return nil, errkind.Invalid("unknown method %q", req.Method)
	}
}

// ListenUnix serves sessions on a unix domain socket at path until ctx is
// done. A stale socket file is replaced. Each connection is one session.
func (s *Server) ListenUnix(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return err
	}
	if err := os.Chmod(path, 0600); err != nil {
		s.logger.Warn().Err(err).Str("socket", path).Msg("Failed to restrict socket permissions")
	}
	s.logger.Info().Str("socket", path).Msg("IPC server started")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info().Str("socket", path).Msg("IPC server stopped")
				return nil
			}
			s.logger.Warn().Err(err).Msg("Failed to accept IPC connection")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			closeOnDone := context.AfterFunc(ctx, func() { conn.Close() })
			defer closeOnDone()

			if err := s.Serve(ctx, conn, conn); err != nil && ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("IPC session ended with error")
			}
		}()
	}
}
