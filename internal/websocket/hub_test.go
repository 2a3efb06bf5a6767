package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/require"

	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/logger"
	"github.com/QLi007/QLi007-ai-music-platform-v0.1/internal/model"
)

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHub_BroadcastToRecordSubscribers(t *testing.T) {
	hub := NewHub(logger.Discard())
	go hub.Run()
	defer hub.Stop()

	subscriber := &Client{RecordID: "rec-1", Send: make(chan []byte, 4)}
	bystander := &Client{RecordID: "rec-2", Send: make(chan []byte, 4)}
	hub.Register(subscriber)
	hub.Register(bystander)

	rec := model.NewGenerationRecord("rec-1", "owner", "", "p", "s", 30, time.Now())
	hub.BroadcastUpdate(rec)

	var update model.WSUpdateMessage
	require.NoError(t, json.Unmarshal(receive(t, subscriber.Send), &update))
	require.Equal(t, model.WSMessageTypeUpdate, update.Type)
	require.Equal(t, "rec-1", update.RecordID)
	require.Equal(t, model.StatusProcessing, update.Status)
	require.Equal(t, "rec-1", update.Record.ID)

	hub.BroadcastError("rec-1", "GENERATION_FAILED", "boom")
	var failure model.WSErrorMessage
	require.NoError(t, json.Unmarshal(receive(t, subscriber.Send), &failure))
	require.Equal(t, "GENERATION_FAILED", failure.Error.Code)

	require.Empty(t, bystander.Send)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub(logger.Discard())
	go hub.Run()
	defer hub.Stop()

	c := &Client{RecordID: "rec-1", Send: make(chan []byte, 1)}
	hub.Register(c)
	hub.Unregister(c)

	select {
	case _, ok := <-c.Send:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("send channel was not closed")
	}
}

type recordingWriter struct {
	mu    sync.Mutex
	types []int
	err   error
}

func (w *recordingWriter) WriteMessage(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.types = append(w.types, messageType)
	return w.err
}

func (w *recordingWriter) written() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.types...)
}

func runPump(w messageWriter, send chan []byte, quit chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(w, send, quit, time.Hour)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
}

func TestWritePump_ClosedSendWritesClose(t *testing.T) {
	w := &recordingWriter{}
	send := make(chan []byte, 1)
	done := runPump(w, send, make(chan struct{}))

	send <- []byte(`{"type":"update"}`)
	close(send)
	waitDone(t, done)

	require.Equal(t, []int{websocket.TextMessage, websocket.CloseMessage}, w.written())
}

func TestWritePump_QuitStopsWithoutWriting(t *testing.T) {
	w := &recordingWriter{}
	quit := make(chan struct{})
	done := runPump(w, make(chan []byte), quit)

	close(quit)
	waitDone(t, done)
	require.Empty(t, w.written())
}

func TestWritePump_WriteErrorStops(t *testing.T) {
	w := &recordingWriter{err: errors.New("broken pipe")}
	send := make(chan []byte, 2)
	done := runPump(w, send, make(chan struct{}))

	send <- []byte("a")
	waitDone(t, done)
	require.Equal(t, []int{websocket.TextMessage}, w.written())
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	hub := NewHub(logger.Discard())
	go hub.Run()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c := &Client{RecordID: "rec-1", Send: make(chan []byte, 1)}
		hub.Register(c)
		hub.Unregister(c)
	}()
	waitDone(t, done)
}
