// Package ipc exposes the service over newline-delimited JSON, on stdio or
// a unix domain socket.
//
// Every line is one message. Requests carry an id chosen by the client and
// are answered by exactly one response with the same id. Progress and
// engine warnings are pushed as event lines that have no id:
//
//	-> {"id":"1","method":"startDownload","args":{"downloadId":"t1",...}}
//	<- {"id":"1","result":null}
//	<- {"event":"download","data":{"downloadId":"t1","bytesWritten":1048576,...}}
//	<- {"event":"log","data":{"level":"warn","message":"...","stage":"extract"}}
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/retro/rshop/internal/errkind"
	"github.com/retro/rshop/internal/events"
)

// Method names accepted by the server.
const (
	MethodPing            = "ping"
	MethodTestConnection  = "testConnection"
	MethodListFiles       = "listFiles"
	MethodStartDownload   = "startDownload"
	MethodCancelDownload  = "cancelDownload"
	MethodExtractArchive  = "extractArchive"
	MethodFreeSpace       = "freeSpace"
	MethodActiveDownloads = "activeDownloads"
)

// Request is a client call.
type Request struct {
	ID     string                 `json:"id"`
	Method string                 `json:"method"`
	Args   map[string]interface{} `json:"args,omitempty"`
}

// ErrorData is the error half of a response.
type ErrorData struct {
	Kind    errkind.Kind `json:"kind"`
	Message string       `json:"message"`
}

func (e *ErrorData) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Response answers one Request.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorData      `json:"error,omitempty"`
}

// EventMessage is a pushed progress event.
type EventMessage struct {
	Event events.EventType `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

// PingData answers a ping.
type PingData struct {
	Version string `json:"version"`
}

// message is the union used to tell responses from events on the wire.
type message struct {
	ID     string           `json:"id,omitempty"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  *ErrorData       `json:"error,omitempty"`
	Event  events.EventType `json:"event,omitempty"`
	Data   json.RawMessage  `json:"data,omitempty"`
}

// NewErrorResponse classifies err into a response.
func NewErrorResponse(id string, err error) *Response {
	return &Response{ID: id, Error: &ErrorData{Kind: errkind.Of(err), Message: errkind.Reason(err)}}
}

// NewResultResponse marshals result into a response.
func NewResultResponse(id string, result interface{}) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Result: data}, nil
}

// NewEventMessage converts a download, extract or log event. Other event
// types are not forwarded and yield ok == false.
func NewEventMessage(e events.Event) (msg *EventMessage, ok bool, err error) {
	switch e.(type) {
	case *events.DownloadEvent, *events.ExtractEvent, *events.LogEvent:
	default:
		return nil, false, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, false, err
	}
	return &EventMessage{Event: e.Type(), Data: data}, true, nil
}

// DecodeRequest deserializes a request line.
func DecodeRequest(line []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, err
	}
	if req.Method == "" {
		return nil, fmt.Errorf("request has no method")
	}
	return &req, nil
}
