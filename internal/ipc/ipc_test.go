package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retro/rshop/internal/errkind"
	"github.com/retro/rshop/internal/events"
	"github.com/retro/rshop/internal/remote"
	"github.com/retro/rshop/internal/services"
	"github.com/retro/rshop/internal/transfer"
	"github.com/retro/rshop/internal/version"
)

func newTestService(t *testing.T) *services.SMBService {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/games/a.txt", make([]byte, 100), 0644))
	require.NoError(t, afero.WriteFile(fs, "/games/dir/b.txt", make([]byte, 50), 0644))

	svc := services.NewSMBService(services.Options{Connector: remote.NewFsConnector(fs)})
	t.Cleanup(svc.Shutdown)
	return svc
}

// startSession serves one session over an in-memory pipe.
func startSession(t *testing.T, svc *services.SMBService) *Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	srv := NewServer(svc, svc.EventBus(), nil)

	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background(), serverConn, serverConn) }()

	client := NewClient(clientConn)
	t.Cleanup(func() {
		client.Close()
		serverConn.Close()
		<-served
	})
	return client
}

func shareArgs() map[string]interface{} {
	return map[string]interface{}{"host": "nas", "share": "games"}
}

func TestPing(t *testing.T) {
	client := startSession(t, newTestService(t))

	var pong PingData
	require.NoError(t, client.Call(context.Background(), MethodPing, nil, &pong))
	assert.Equal(t, version.Version, pong.Version)
}

func TestListFilesOverIPC(t *testing.T) {
	client := startSession(t, newTestService(t))

	args := shareArgs()
	args["maxDepth"] = 1
	var entries []remote.Entry
	require.NoError(t, client.Call(context.Background(), MethodListFiles, args, &entries))
	require.Len(t, entries, 3)

	var nested remote.Entry
	for _, e := range entries {
		if e.Name == "b.txt" {
			nested = e
		}
	}
	assert.Equal(t, "dir/b.txt", nested.Path)
	assert.Equal(t, "dir", nested.ParentPath)
	assert.Equal(t, int64(50), nested.Size)
}

func TestTestConnectionOverIPC(t *testing.T) {
	client := startSession(t, newTestService(t))

	var res remote.ConnectionResult
	require.NoError(t, client.Call(context.Background(), MethodTestConnection, shareArgs(), &res))
	assert.True(t, res.Success)

	err := client.Call(context.Background(), MethodTestConnection, map[string]interface{}{"share": "games"}, &res)
	var ed *ErrorData
	require.ErrorAs(t, err, &ed)
	assert.Equal(t, errkind.InvalidArguments, ed.Kind)
	assert.Equal(t, "Host is required", ed.Message)
}

func TestUnknownMethod(t *testing.T) {
	client := startSession(t, newTestService(t))

	err := client.Call(context.Background(), "reboot", nil, nil)
	var ed *ErrorData
	require.ErrorAs(t, err, &ed)
	assert.Equal(t, errkind.InvalidArguments, ed.Kind)
}

func TestDownloadEventsOverIPC(t *testing.T) {
	client := startSession(t, newTestService(t))

	out := filepath.Join(t.TempDir(), "b.txt")
	args := shareArgs()
	args["downloadId"] = "t1"
	args["filePath"] = "dir/b.txt"
	args["outputPath"] = out
	require.NoError(t, client.Call(context.Background(), MethodStartDownload, args, nil))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-client.Events():
			require.True(t, ok)
			require.Equal(t, events.EventDownload, msg.Event)

			var data map[string]interface{}
			require.NoError(t, json.Unmarshal(msg.Data, &data))
			assert.Equal(t, "t1", data["downloadId"])
			if data["status"] == string(events.StatusComplete) {
				assert.Equal(t, float64(50), data["bytesWritten"])
				assert.Equal(t, float64(50), data["totalBytes"])
				assert.NotContains(t, data, "error")
				assert.FileExists(t, out)
				return
			}
		case <-timeout:
			t.Fatal("no complete event")
		}
	}
}

func TestCancelAndActiveOverIPC(t *testing.T) {
	client := startSession(t, newTestService(t))

	require.NoError(t, client.Call(context.Background(), MethodCancelDownload, map[string]interface{}{"downloadId": "nope"}, nil))

	var active []DownloadInfo
	require.NoError(t, client.Call(context.Background(), MethodActiveDownloads, nil, &active))
	assert.Empty(t, active)
}

// gatedConnector holds every Connect until the gate is closed.
type gatedConnector struct {
	remote.Connector
	gate chan struct{}
}

func (c *gatedConnector) Connect(ctx context.Context, ep remote.Endpoint) (remote.Session, error) {
	select {
	case <-c.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.Connector.Connect(ctx, ep)
}

func TestActiveDownloadsListsRunningOverIPC(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/games/a.txt", make([]byte, 100), 0644))
	gate := make(chan struct{})
	svc := services.NewSMBService(services.Options{Connector: &gatedConnector{Connector: remote.NewFsConnector(fs), gate: gate}})
	t.Cleanup(svc.Shutdown)
	client := startSession(t, svc)

	out := filepath.Join(t.TempDir(), "a.txt")
	args := shareArgs()
	args["downloadId"] = "t1"
	args["filePath"] = "a.txt"
	args["outputPath"] = out
	require.NoError(t, client.Call(context.Background(), MethodStartDownload, args, nil))

	var active []DownloadInfo
	require.NoError(t, client.Call(context.Background(), MethodActiveDownloads, nil, &active))
	require.Len(t, active, 1)
	assert.Equal(t, "t1", active[0].DownloadID)
	assert.Equal(t, out, active[0].OutputPath)
	assert.Equal(t, transfer.TaskRunning, active[0].State)
	assert.False(t, active[0].StartedAt.IsZero())

	close(gate)
	assert.Eventually(t, func() bool {
		var now []DownloadInfo
		return client.Call(context.Background(), MethodActiveDownloads, nil, &now) == nil && len(now) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFreeSpaceOverIPC(t *testing.T) {
	client := startSession(t, newTestService(t))

	var usage map[string]int64
	require.NoError(t, client.Call(context.Background(), MethodFreeSpace, map[string]interface{}{"path": t.TempDir()}, &usage))
	assert.Contains(t, usage, "freeBytes")
	assert.Contains(t, usage, "totalBytes")
}

func TestServeMalformedLines(t *testing.T) {
	svc := newTestService(t)
	srv := NewServer(svc, nil, nil)

	in := strings.NewReader("not json\n\n{\"id\":\"7\",\"method\":\"ping\"}\n")
	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), in, &out))

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var r Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		responses = append(responses, r)
	}
	require.Len(t, responses, 2)
	assert.Equal(t, "", responses[0].ID)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, errkind.InvalidArguments, responses[0].Error.Kind)
	assert.Equal(t, "7", responses[1].ID)
	assert.Nil(t, responses[1].Error)
}

func TestNewEventMessage(t *testing.T) {
	msg, ok, err := NewEventMessage(events.NewExtractEvent(150, 150, 100))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, events.EventExtract, msg.Event)
	assert.JSONEq(t, `{"extracted":150,"total":150,"percent":100}`, string(msg.Data))

	msg, ok, err = NewEventMessage(events.NewDownloadEvent("t1", 0, 10, events.StatusCancelled, ""))
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"downloadId":"t1","bytesWritten":0,"totalBytes":10,"status":"cancelled"}`, string(msg.Data))

	msg, ok, err = NewEventMessage(events.NewLogEvent(events.WarnLevel, "Skipped subdirectory that could not be listed: dir", "list", nil))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, events.EventLog, msg.Event)
	assert.JSONEq(t, `{"level":"warn","message":"Skipped subdirectory that could not be listed: dir","stage":"list"}`, string(msg.Data))

	_, ok, err = NewEventMessage(customEvent{})
	require.NoError(t, err)
	assert.False(t, ok)
}

type customEvent struct{ events.BaseEvent }

func TestListenUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets are exercised on unix only")
	}
	svc := newTestService(t)
	srv := NewServer(svc, svc.EventBus(), nil)

	socket := filepath.Join(t.TempDir(), "rshop.sock")
	ctx, cancel := context.WithCancel(context.Background())
	listened := make(chan error, 1)
	go func() { listened <- srv.ListenUnix(ctx, socket) }()

	var client *Client
	require.Eventually(t, func() bool {
		c, err := Dial(context.Background(), socket, time.Second)
		if err != nil {
			return false
		}
		client = c
		return true
	}, 2*time.Second, 10*time.Millisecond)

	var pong PingData
	require.NoError(t, client.Call(context.Background(), MethodPing, nil, &pong))
	assert.Equal(t, version.Version, pong.Version)

	cancel()
	require.NoError(t, <-listened)

	_, ok := <-client.Events()
	assert.False(t, ok)
	client.Close()
}

func TestExtractWarningsOverIPC(t *testing.T) {
	client := startSession(t, newTestService(t))

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	f, err := os.Create(archivePath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{"../evil.txt", "ok.txt"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("data"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	var names []string
	args := map[string]interface{}{"archivePath": archivePath, "targetPath": filepath.Join(dir, "out")}
	require.NoError(t, client.Call(context.Background(), MethodExtractArchive, args, &names))
	assert.Equal(t, []string{"ok.txt"}, names)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-client.Events():
			if msg.Event != events.EventLog {
				continue
			}
			var data map[string]interface{}
			require.NoError(t, json.Unmarshal(msg.Data, &data))
			assert.Equal(t, "warn", data["level"])
			assert.Equal(t, "extract", data["stage"])
			assert.Equal(t, "Skipped entry outside target: ../evil.txt", data["message"])
			return
		case <-timeout:
			t.Fatal("no log event received")
		}
	}
}
