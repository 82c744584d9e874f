package constants

import (
	"time"
)

// Remote connection settings
const (
	// DefaultPort - SMB over TCP
	DefaultPort = 445

	// GuestUser - user name that selects guest authentication.
	// An empty user name selects it as well.
	GuestUser = "guest"

	// ConnectTimeout - TCP dial + session setup budget (30s)
	ConnectTimeout = 30 * time.Second

	// ReadTimeout - socket read deadline applied to every read on the wire (60s)
	ReadTimeout = 60 * time.Second
)

// Download settings
const (
	// ReadBufferSize - size of each chunk read from the remote file (1 MiB)
	ReadBufferSize = 1024 * 1024

	// WriteBufferSize - buffered writer size for the local output file (1 MiB)
	WriteBufferSize = 1024 * 1024

	// InactivityTimeout - a download with no bytes for this long is stalled (60s).
	// Measured from the last successful read, not from the transfer start.
	InactivityTimeout = 60 * time.Second

	// ProgressInterval - minimum wall-clock gap between two progress events (500ms)
	ProgressInterval = 500 * time.Millisecond

	// DiskSpaceSafetyMargin - multiplier applied to the remote size before
	// checking free space at the destination
	DiskSpaceSafetyMargin = 1.05
)

// Extraction settings
const (
	// MaxExtractBytes - ceiling for cumulative decompressed bytes in one run (8 GiB)
	MaxExtractBytes = 8 * 1024 * 1024 * 1024

	// ExtractBufferSize - copy buffer used while streaming archive entries (256 KiB)
	ExtractBufferSize = 256 * 1024
)

// Background task pool
const (
	// PoolWorkers - fixed number of workers running browse/download tasks
	PoolWorkers = 2

	// PoolQueueSize - bounded backlog of queued tasks
	PoolQueueSize = 256

	// PoolShutdownGrace - how long queued tasks may drain on shutdown (5s)
	PoolShutdownGrace = 5 * time.Second
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// Log file rotation
const (
	LogFileMaxSizeMB  = 10
	LogFileMaxBackups = 5
	LogFileMaxAgeDays = 30
)
