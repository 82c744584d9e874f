// Package events carries progress and log events from the engines to observers.
package events

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/retro/rshop/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventDownload EventType = "download" // Download progress and terminal status
	EventExtract  EventType = "extract"  // Extraction progress
	EventLog      EventType = "log"      // Engine warnings worth showing to a caller
)

// DownloadStatus is the status carried by a DownloadEvent.
type DownloadStatus string

const (
	StatusProgress  DownloadStatus = "progress"
	StatusComplete  DownloadStatus = "complete"
	StatusCancelled DownloadStatus = "cancelled"
	StatusError     DownloadStatus = "error"
)

// IsTerminal reports whether no further events follow this status.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusError
}

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the level in lower case.
func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(l.String())), nil
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType `json:"-"`
	Time      time.Time `json:"-"`
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// DownloadEvent reports progress or the terminal status of one transfer.
type DownloadEvent struct {
	BaseEvent
	DownloadID   string         `json:"downloadId"`
	BytesWritten int64          `json:"bytesWritten"`
	TotalBytes   int64          `json:"totalBytes"`
	Status       DownloadStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
}

// ExtractEvent reports extraction progress. Only one extraction is modeled
// per call site, so there is no id.
type ExtractEvent struct {
	BaseEvent
	Extracted int64 `json:"extracted"`
	Total     int64 `json:"total"`
	Percent   int   `json:"percent"`
}

// LogEvent carries a condition an engine handled on its own, such as a
// skipped archive entry, so observers can surface it.
type LogEvent struct {
	BaseEvent
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
	Stage   string   `json:"stage"`
	Error   string   `json:"error,omitempty"`
}

// NewLogEvent stamps a LogEvent with the current time.
func NewLogEvent(level LogLevel, message, stage string, err error) *LogEvent {
	e := &LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     level,
		Message:   message,
		Stage:     stage,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// NewDownloadEvent stamps a DownloadEvent with the current time.
func NewDownloadEvent(id string, written, total int64, status DownloadStatus, errMsg string) *DownloadEvent {
	return &DownloadEvent{
		BaseEvent:    BaseEvent{EventType: EventDownload, Time: time.Now()},
		DownloadID:   id,
		BytesWritten: written,
		TotalBytes:   total,
		Status:       status,
		Error:        errMsg,
	}
}

// NewExtractEvent stamps an ExtractEvent with the current time.
func NewExtractEvent(extracted, total int64, percent int) *ExtractEvent {
	return &ExtractEvent{
		BaseEvent: BaseEvent{EventType: EventExtract, Time: time.Now()},
		Extracted: extracted,
		Total:     total,
		Percent:   percent,
	}
}

// Sink accepts events. Engines depend on this rather than on EventBus.
type Sink interface {
	Publish(event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish calls f(event).
func (f SinkFunc) Publish(event Event) { f(event) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// A subscriber whose buffer is full misses the event.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes a subscription channel from a specific event type
// and closes it.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			close(subCh)
			return
		}
	}
}

// UnsubscribeAll removes a subscription channel wherever it is registered
// and closes it.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				close(subCh)
				return
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			close(subCh)
			return
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// Executor runs a delivery on the consumer's preferred context,
// e.g. by posting it to a UI loop.
type Executor func(func())

// Direct runs deliveries on the observing goroutine.
func Direct(fn func()) { fn() }

// Observe delivers every event from ch to handler through exec until ctx is
// done or ch is closed. Events from one channel are handed to exec in
// publish order. The returned channel is closed when observation stops.
func Observe(ctx context.Context, ch <-chan Event, exec Executor, handler func(Event)) <-chan struct{} {
	if exec == nil {
		exec = Direct
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				exec(func() { handler(ev) })
			}
		}
	}()
	return done
}
