// Package archive extracts local archives into a directory tree.
//
// Extraction is two-pass: a best-effort size scan over the archive metadata,
// then a sequential stream of the entries. Entries that would land outside
// the target directory are skipped, and the run is aborted once the
// cumulative decompressed size passes the configured ceiling.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/retro/rshop/internal/constants"
	"github.com/retro/rshop/internal/errkind"
	"github.com/retro/rshop/internal/events"
	"github.com/retro/rshop/internal/logging"
)

// ErrSizeLimitExceeded is the cause of an aborted run.
var ErrSizeLimitExceeded = errors.New("extraction size limit exceeded")

// State of one extraction run.
type State string

const (
	StateScanning   State = "scanning"
	StateExtracting State = "extracting"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted" // size ceiling reached
	StateFailed     State = "failed"
)

// Job tracks one extraction run.
type Job struct {
	ArchivePath string
	TargetDir   string
	Format      Format

	mu             sync.RWMutex
	state          State
	totalBytes     int64
	extractedBytes int64
	entries        []string
}

// NewJob creates a job for archivePath, detecting the format from its name.
func NewJob(archivePath, targetDir string) *Job {
	return &Job{
		ArchivePath: archivePath,
		TargetDir:   targetDir,
		Format:      DetectFormat(archivePath),
		state:       StateScanning,
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Progress returns extracted and total bytes. total is 0 when unknown.
func (j *Job) Progress() (extracted, total int64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.extractedBytes, j.totalBytes
}

// Entries returns the names of the files written so far, in archive order.
func (j *Job) Entries() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]string(nil), j.entries...)
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// Options configures an Extractor. Zero values select the defaults.
type Options struct {
	MaxBytes   int64
	BufferSize int
}

// Extractor runs extraction jobs.
type Extractor struct {
	sink     events.Sink
	logger   *logging.Logger
	maxBytes int64
	bufSize  int
}

// NewExtractor creates an extractor that publishes progress to sink.
func NewExtractor(sink events.Sink, logger *logging.Logger, opts Options) *Extractor {
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = constants.MaxExtractBytes
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = constants.ExtractBufferSize
	}
	return &Extractor{sink: sink, logger: logger, maxBytes: opts.MaxBytes, bufSize: opts.BufferSize}
}

// Extract unpacks archivePath into targetDir and returns the names of the
// files written. On failure the names written before the failure are
// returned with the error.
func (x *Extractor) Extract(ctx context.Context, archivePath, targetDir string) ([]string, error) {
	job := NewJob(archivePath, targetDir)
	err := x.Run(ctx, job)
	return job.Entries(), err
}

// Run executes job. ctx is checked between entries and between chunks.
func (x *Extractor) Run(ctx context.Context, job *Job) error {
	if job.ArchivePath == "" || job.TargetDir == "" {
		job.setState(StateFailed)
		return errkind.Invalid("archivePath and targetPath are required")
	}
	log := x.logger.With().Str("archive", job.ArchivePath).Str("format", job.Format.String()).Logger()

	job.setState(StateScanning)
	total, err := scanTotal(job.ArchivePath, job.Format)
	if err != nil {
		log.Warn().Err(err).Msg("Size scan failed, progress will be unavailable")
		total = 0
	}
	job.mu.Lock()
	job.totalBytes = total
	job.mu.Unlock()

	job.setState(StateExtracting)
	err = x.extract(ctx, job, log)
	switch {
	case err == nil:
		job.setState(StateCompleted)
		extracted, _ := job.Progress()
		log.Info().Int64("bytes", extracted).Int("files", len(job.Entries())).Msg("Extraction complete")
	case errors.Is(err, ErrSizeLimitExceeded):
		job.setState(StateAborted)
		log.Error().Err(err).Msg("Extraction aborted")
	default:
		job.setState(StateFailed)
		log.Error().Err(err).Msg("Extraction failed")
	}
	return err
}

func (x *Extractor) extract(ctx context.Context, job *Job, log zerolog.Logger) error {
	if err := os.MkdirAll(job.TargetDir, 0755); err != nil {
		return errkind.New(errkind.IO, "mkdir", job.TargetDir, err)
	}
	root, err := CanonicalDir(job.TargetDir)
	if err != nil {
		return errkind.New(errkind.IO, "resolve", job.TargetDir, err)
	}

	entries, err := openEntries(job.ArchivePath, job.Format)
	if err != nil {
		return errkind.New(errkind.IO, "open", job.ArchivePath, err)
	}
	defer entries.Close()

	buf := make([]byte, x.bufSize)
	lastPercent := -1

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e, err := entries.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errkind.New(errkind.IO, "read", job.ArchivePath, err)
		}

		dest, err := ContainedPath(root, e.name)
		if err != nil {
			log.Debug().Err(err).Str("entry", e.name).Msg("Skipping entry outside target")
			x.sink.Publish(events.NewLogEvent(events.WarnLevel, "Skipped entry outside target: "+e.name, "extract", err))
			continue
		}

		switch e.kind {
		case kindDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return errkind.New(errkind.IO, "mkdir", dest, err)
			}
			continue
		case kindOther:
			log.Debug().Str("entry", e.name).Msg("Skipping non-regular entry")
			continue
		}

		if dest == root {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return errkind.New(errkind.IO, "mkdir", filepath.Dir(dest), err)
		}
		if err := x.writeEntry(ctx, job, e, dest, buf, &lastPercent); err != nil {
			if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Debug().Err(rmErr).Str("path", dest).Msg("Partial entry cleanup failed")
			}
			return err
		}

		job.mu.Lock()
		job.entries = append(job.entries, e.name)
		job.mu.Unlock()
	}
}

func (x *Extractor) writeEntry(ctx context.Context, job *Job, e *entry, dest string, buf []byte, lastPercent *int) error {
	rc, err := e.open()
	if err != nil {
		return errkind.New(errkind.IO, "open entry", e.name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errkind.New(errkind.IO, "create", dest, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			return err
		}

		n, readErr := rc.Read(buf)
		if n > 0 {
			extracted, _ := job.Progress()
			if extracted+int64(n) > x.maxBytes {
				out.Close()
				return errkind.WithReason(errkind.SizeLimitExceeded, "extract", job.ArchivePath,
					fmt.Sprintf("Archive exceeds the %s extraction limit", humanize.IBytes(uint64(x.maxBytes))),
					ErrSizeLimitExceeded)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				return errkind.New(errkind.IO, "write", dest, err)
			}
			job.mu.Lock()
			job.extractedBytes += int64(n)
			job.mu.Unlock()
			x.report(job, lastPercent)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			return errkind.New(errkind.IO, "read entry", e.name, readErr)
		}
	}

	if err := out.Close(); err != nil {
		return errkind.New(errkind.IO, "close", dest, err)
	}
	return nil
}

// report publishes progress when the integer percentage changes. Nothing is
// published when the total is unknown.
func (x *Extractor) report(job *Job, lastPercent *int) {
	extracted, total := job.Progress()
	if total <= 0 {
		return
	}
	percent := int(extracted * 100 / total)
	if percent > 100 {
		percent = 100
	}
	if percent == *lastPercent {
		return
	}
	*lastPercent = percent
	x.sink.Publish(events.NewExtractEvent(extracted, total, percent))
}
