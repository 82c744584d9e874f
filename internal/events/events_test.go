package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventDownload)
	bus.Publish(NewDownloadEvent("t1", 10, 100, StatusProgress, ""))

	select {
	case received := <-ch:
		ev, ok := received.(*DownloadEvent)
		require.True(t, ok, "expected DownloadEvent")
		assert.Equal(t, "t1", ev.DownloadID)
		assert.Equal(t, int64(10), ev.BytesWritten)
		assert.Equal(t, StatusProgress, ev.Status)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_DifferentEventTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	downloadCh := bus.Subscribe(EventDownload)
	extractCh := bus.Subscribe(EventExtract)

	bus.Publish(NewExtractEvent(50, 100, 50))

	select {
	case <-extractCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("Extract subscriber didn't receive event")
	}

	select {
	case <-downloadCh:
		t.Error("Download subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()
	bus.Publish(NewExtractEvent(1, 2, 50))
	bus.Publish(NewDownloadEvent("x", 0, 0, StatusCancelled, ""))

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
		}
	}
	assert.Equal(t, 2, count)
}

func TestEventBus_NonBlocking(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	_ = bus.Subscribe(EventDownload)
	for i := 0; i < 10; i++ {
		bus.Publish(NewDownloadEvent("t", int64(i), 10, StatusProgress, ""))
	}

	assert.Equal(t, int64(8), bus.GetDroppedEventCount())
}

func TestEventBus_CloseAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(10)

	ch := bus.Subscribe(EventDownload)
	other := bus.Subscribe(EventDownload)
	bus.Unsubscribe(EventDownload, other)

	_, ok := <-other
	assert.False(t, ok, "unsubscribed channel should be closed")

	bus.Close()
	_, ok = <-ch
	assert.False(t, ok, "channel should be closed after bus.Close()")

	// Publishing after close should not panic
	bus.Publish(NewDownloadEvent("t", 0, 0, StatusProgress, ""))
}

func TestDownloadStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusProgress.IsTerminal())
	assert.True(t, StatusComplete.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
}

func TestObserve_UsesExecutorInOrder(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventExtract)

	var mu sync.Mutex
	var posted int
	var got []int
	exec := func(fn func()) {
		mu.Lock()
		posted++
		mu.Unlock()
		fn()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := Observe(ctx, ch, exec, func(ev Event) {
		mu.Lock()
		got = append(got, ev.(*ExtractEvent).Percent)
		mu.Unlock()
	})

	for p := 1; p <= 3; p++ {
		bus.Publish(NewExtractEvent(int64(p), 3, p*33))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{33, 66, 99}, got)
	assert.Equal(t, 3, posted)
}

func TestObserve_StopsWhenChannelCloses(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.Subscribe(EventDownload)
	done := Observe(context.Background(), ch, nil, func(Event) {})

	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer did not stop after bus close")
	}
}

func TestLogEventJSON(t *testing.T) {
	e := NewLogEvent(WarnLevel, "Skipped entry outside target: ../evil.txt", "extract", errors.New("entry path escapes target directory"))
	assert.Equal(t, EventLog, e.Type())

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"warn","message":"Skipped entry outside target: ../evil.txt","stage":"extract","error":"entry path escapes target directory"}`, string(data))

	data, err = json.Marshal(NewLogEvent(InfoLevel, "done", "list", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"info","message":"done","stage":"list"}`, string(data))
}
