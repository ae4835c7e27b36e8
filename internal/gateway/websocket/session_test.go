package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cairn/internal/agent"
	"cairn/internal/checkpoint"
	"cairn/internal/gateway/handlers"
)

type fakeStreamer struct {
	mu         sync.Mutex
	gotReq     agent.Request
	gotResume  string
	resumeErr  error
	cancelled  chan struct{}
	blockUntil bool
}

func (f *fakeStreamer) Stream(ctx context.Context, req agent.Request) (<-chan agent.Event, error) {
	if req.Prompt == "" {
		return nil, agent.ErrEmptyInput
	}
	f.mu.Lock()
	f.gotReq = req
	f.mu.Unlock()
	ch := make(chan agent.Event, 4)
	go func() {
		defer close(ch)
		ch <- agent.Event{Type: agent.EventTextDelta, Delta: "hel"}
		ch <- agent.Event{Type: agent.EventTextDelta, Delta: "lo"}
		if f.blockUntil {
			<-ctx.Done()
			close(f.cancelled)
			return
		}
		ch <- agent.Event{Type: agent.EventDone, Result: &agent.Result{ThreadID: req.ThreadID, Status: agent.StatusCompleted, Text: "hello"}}
	}()
	return ch, nil
}

func (f *fakeStreamer) Resume(_ context.Context, threadID, interruptID string, _ json.RawMessage, opts *agent.ResumeOptions) (*agent.Result, error) {
	f.mu.Lock()
	f.gotResume = threadID + "/" + interruptID
	f.mu.Unlock()
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	opts.OnEvent(agent.Event{Type: agent.EventToolResult, Step: 0})
	return &agent.Result{ThreadID: threadID, Status: agent.StatusReInterrupted, Interrupt: &checkpoint.Interrupt{ID: "int_c1:1"}}, nil
}

func dial(t *testing.T, f *fakeStreamer) *websocket.Conn {
	t.Helper()
	r := mux.NewRouter()
	r.Handle("/v1/threads/{id}/stream", NewHandler(f))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/threads/t1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEvents(t *testing.T, conn *websocket.Conn) []agent.Event {
	t.Helper()
	var out []agent.Event
	for {
		var ev agent.Event
		if err := conn.ReadJSON(&ev); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			return out
		}
		out = append(out, ev)
	}
}

func TestStreamGenerate(t *testing.T) {
	f := &fakeStreamer{}
	conn := dial(t, f)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:     TypeGenerate,
		Generate: &handlers.GenerateRequest{Prompt: "hi", Model: "m"},
	}))

	events := readEvents(t, conn)
	require.Len(t, events, 3)
	assert.Equal(t, agent.EventTextDelta, events[0].Type)
	assert.Equal(t, "hel", events[0].Delta)
	assert.Equal(t, agent.EventDone, events[2].Type)
	require.NotNil(t, events[2].Result)
	assert.Equal(t, "hello", events[2].Result.Text)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "t1", f.gotReq.ThreadID)
	assert.Equal(t, "m", f.gotReq.Model)
}

func TestStreamResume(t *testing.T) {
	f := &fakeStreamer{}
	conn := dial(t, f)

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:   TypeResume,
		Resume: &handlers.ResumeRequest{InterruptID: "int_c1", Response: json.RawMessage(`{"approved":true}`)},
	}))

	events := readEvents(t, conn)
	require.Len(t, events, 2)
	assert.Equal(t, agent.EventToolResult, events[0].Type)
	assert.Equal(t, agent.EventDone, events[1].Type)
	assert.Equal(t, agent.StatusReInterrupted, events[1].Result.Status)
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "t1/int_c1", f.gotResume)
}

func TestStreamResumeError(t *testing.T) {
	f := &fakeStreamer{resumeErr: errors.New("no pending interrupt")}
	conn := dial(t, f)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeResume, Resume: &handlers.ResumeRequest{InterruptID: "x"}}))

	events := readEvents(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, agent.EventError, events[0].Type)
	assert.Equal(t, "no pending interrupt", events[0].Error)
}

func TestStreamRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		msg  ClientMessage
		want string
	}{
		{"unknown type", ClientMessage{Type: "chat"}, `unknown message type "chat"`},
		{"missing generate", ClientMessage{Type: TypeGenerate}, "generate is required"},
		{"missing interrupt", ClientMessage{Type: TypeResume, Resume: &handlers.ResumeRequest{}}, "resume.interrupt_id is required"},
		{"empty prompt", ClientMessage{Type: TypeGenerate, Generate: &handlers.GenerateRequest{}}, agent.ErrEmptyInput.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, &fakeStreamer{})
			require.NoError(t, conn.WriteJSON(tt.msg))

			var msg ErrorMessage
			require.NoError(t, conn.ReadJSON(&msg))
			assert.Equal(t, TypeError, msg.Type)
			assert.Equal(t, handlers.ErrCodeInvalidRequest, msg.Code)
			assert.Equal(t, tt.want, msg.Message)
		})
	}
}

func TestStreamCancelledOnClose(t *testing.T) {
	f := &fakeStreamer{blockUntil: true, cancelled: make(chan struct{})}
	conn := dial(t, f)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: TypeGenerate, Generate: &handlers.GenerateRequest{Prompt: "hi"}}))
	var ev agent.Event
	require.NoError(t, conn.ReadJSON(&ev))
	conn.Close()

	select {
	case <-f.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("call was not cancelled after the client disconnected")
	}
}
