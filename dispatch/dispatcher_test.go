package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
)

// fakeTransport broadcasts published tuples to every subscriber, the way
// the real host boundary does.
type fakeTransport struct {
	mu          sync.Mutex
	stdoutSubs  []chan Line
	stderrSubs  []chan Line
	doneSubs    []chan Completion
	cancelled   []string
	startFn     func(req StartRequest) (string, error)
	cancelErr   error
	lastRequest StartRequest
}

func (f *fakeTransport) StartQuery(_ context.Context, req StartRequest) (string, error) {
	f.mu.Lock()
	f.lastRequest = req
	f.mu.Unlock()
	if f.startFn != nil {
		return f.startFn(req)
	}
	return "q1", nil
}

func (f *fakeTransport) CancelQuery(_ context.Context, queryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, queryID)
	return f.cancelErr
}

func (f *fakeTransport) SubscribeStdout() (<-chan Line, func()) {
	ch := make(chan Line, 64)
	f.mu.Lock()
	f.stdoutSubs = append(f.stdoutSubs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeTransport) SubscribeStderr() (<-chan Line, func()) {
	ch := make(chan Line, 64)
	f.mu.Lock()
	f.stderrSubs = append(f.stderrSubs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeTransport) SubscribeCompletion() (<-chan Completion, func()) {
	ch := make(chan Completion, 8)
	f.mu.Lock()
	f.doneSubs = append(f.doneSubs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakeTransport) stdout(queryID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.stdoutSubs {
		ch <- Line{QueryID: queryID, Text: text}
	}
}

func (f *fakeTransport) stderr(queryID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.stderrSubs {
		ch <- Line{QueryID: queryID, Text: text}
	}
}

func (f *fakeTransport) complete(queryID string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.doneSubs {
		ch <- Completion{QueryID: queryID, Code: code}
	}
}

// collector gathers events from the dispatcher goroutine and signals on
// each done event.
type collector struct {
	mu     sync.Mutex
	events []agentwire.Event
	doneCh chan struct{}
}

func newCollector() *collector {
	return &collector{doneCh: make(chan struct{}, 4)}
}

func (c *collector) onEvent(ev agentwire.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	if ev.Type == agentwire.EventDone {
		c.doneCh <- struct{}{}
	}
}

func (c *collector) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-c.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for done event")
	}
}

func (c *collector) all() []agentwire.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]agentwire.Event(nil), c.events...)
}

func TestDispatcherStreamsClassifiedEvents(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft)
	col := newCollector()

	handle, err := d.Start(context.Background(), StartRequest{Workspace: "/ws", Prompt: "hi"}, col.onEvent)
	require.NoError(t, err)
	require.Equal(t, "q1", handle.ID)

	ft.stdout("q1", `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Looking"},{"type":"tool_use","id":"t1","name":"Read","input":{"file_path":"main.go"}}]}}`)
	ft.stdout("q1", `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"package main"}]}}`)
	ft.complete("q1", 0)
	col.waitDone(t)

	events := col.all()
	require.Len(t, events, 4)
	assert.Equal(t, agentwire.EventText, events[0].Type)
	assert.Equal(t, "Looking", events[0].Content)
	assert.Equal(t, agentwire.EventToolUse, events[1].Type)
	assert.Equal(t, agentwire.EventToolResult, events[2].Type)
	assert.Equal(t, "Read", events[2].Tool.Name, "result must correlate back to the call")
	assert.Equal(t, agentwire.EventDone, events[3].Type)
	for i, ev := range events {
		assert.Equal(t, "q1", ev.QueryID, "event %d must carry the query id", i)
	}
	assert.True(t, handle.Done())
}

func TestDispatcherBuffersLinesBeforeIDResolves(t *testing.T) {
	ft := &fakeTransport{}
	// The host publishes output for this query and for an unrelated one
	// before StartQuery hands back the id.
	ft.startFn = func(StartRequest) (string, error) {
		ft.stdout("q-other", `{"type":"assistant","message":{"role":"assistant","content":"not yours"}}`)
		ft.stdout("q-mine", `{"type":"assistant","message":{"role":"assistant","content":"early line"}}`)
		return "q-mine", nil
	}
	d := New(ft)
	col := newCollector()

	_, err := d.Start(context.Background(), StartRequest{}, col.onEvent)
	require.NoError(t, err)

	ft.complete("q-mine", 0)
	col.waitDone(t)

	events := col.all()
	require.Len(t, events, 2)
	assert.Equal(t, "early line", events[0].Content)
	assert.Equal(t, "q-mine", events[0].QueryID)
	assert.Equal(t, agentwire.EventDone, events[1].Type)
}

func TestDispatcherFiltersForeignQueries(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft)
	col := newCollector()

	_, err := d.Start(context.Background(), StartRequest{}, col.onEvent)
	require.NoError(t, err)

	ft.stdout("q2", `{"type":"assistant","message":{"role":"assistant","content":"someone else"}}`)
	ft.stdout("q1", `{"type":"assistant","message":{"role":"assistant","content":"mine"}}`)
	ft.complete("q2", 1)
	ft.complete("q1", 0)
	col.waitDone(t)

	events := col.all()
	require.Len(t, events, 2)
	assert.Equal(t, "mine", events[0].Content)
	assert.Equal(t, agentwire.EventDone, events[1].Type)
}

func TestDispatcherNonZeroCompletionEmitsError(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft)
	col := newCollector()

	_, err := d.Start(context.Background(), StartRequest{}, col.onEvent)
	require.NoError(t, err)

	ft.stderr("q1", "[DEBUG] probing bridge")
	ft.stderr("q1", "(node:1234) ExperimentalWarning: fetch")
	ft.stderr("q1", "Error: ENOENT no such file")
	ft.complete("q1", 1)
	col.waitDone(t)

	events := col.all()
	require.Len(t, events, 2)
	assert.Equal(t, agentwire.EventError, events[0].Type)
	assert.Contains(t, events[0].Err, "ENOENT no such file")
	assert.NotContains(t, events[0].Err, "[DEBUG]", "diagnostics must be filtered")
	assert.NotContains(t, events[0].Err, "ExperimentalWarning")
	assert.Equal(t, agentwire.EventDone, events[1].Type)
}

func TestDispatcherStartFailure(t *testing.T) {
	ft := &fakeTransport{}
	ft.startFn = func(StartRequest) (string, error) {
		return "", errors.New("bridge script missing")
	}
	d := New(ft)
	col := newCollector()

	handle, err := d.Start(context.Background(), StartRequest{Workspace: "/ws"}, col.onEvent)
	require.Error(t, err)
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, "/ws", startErr.Workspace)

	events := col.all()
	require.Len(t, events, 2)
	assert.Equal(t, agentwire.EventError, events[0].Type)
	assert.Contains(t, events[0].Err, "bridge script missing")
	assert.Equal(t, agentwire.EventDone, events[1].Type)

	assert.True(t, handle.Done())
	handle.Cancel() // inert, must not panic or emit
	assert.Len(t, col.all(), 2)
}

func TestDispatcherCancel(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft)
	col := newCollector()

	handle, err := d.Start(context.Background(), StartRequest{}, col.onEvent)
	require.NoError(t, err)

	handle.Cancel()
	col.waitDone(t)

	require.Equal(t, []string{"q1"}, ft.cancelled)
	events := col.all()
	require.Len(t, events, 2)
	assert.Equal(t, agentwire.EventCancelled, events[0].Type)
	assert.Empty(t, events[0].Reason)
	assert.Equal(t, agentwire.EventDone, events[1].Type)

	handle.Cancel()
	assert.Len(t, ft.cancelled, 1, "cancel must be idempotent")
	assert.Len(t, col.all(), 2)

	// Late lines after teardown are dropped.
	ft.stdout("q1", `{"type":"assistant","message":{"role":"assistant","content":"late"}}`)
	assert.Len(t, col.all(), 2)
}

func TestDispatcherCancelUnconfirmed(t *testing.T) {
	ft := &fakeTransport{cancelErr: errors.New("host unreachable")}
	d := New(ft, WithCancelTimeout(50*time.Millisecond))
	col := newCollector()

	handle, err := d.Start(context.Background(), StartRequest{}, col.onEvent)
	require.NoError(t, err)

	handle.Cancel()
	col.waitDone(t)

	events := col.all()
	require.Len(t, events, 2)
	assert.Equal(t, agentwire.EventCancelled, events[0].Type)
	assert.Equal(t, "unconfirmed", events[0].Reason)
	assert.Equal(t, agentwire.EventDone, events[1].Type)
}

func TestDispatcherCancelAfterCompletionIsNoop(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft)
	col := newCollector()

	handle, err := d.Start(context.Background(), StartRequest{}, col.onEvent)
	require.NoError(t, err)

	ft.complete("q1", 0)
	col.waitDone(t)
	require.Len(t, col.all(), 1)

	handle.Cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, col.all(), 1, "no synthesized events after natural completion")
	assert.Empty(t, ft.cancelled, "no host cancel after natural completion")
}

func TestDispatcherCancelReturnsWithBackloggedConsumer(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft)

	// A consumer with a one-slot queue that stops reading: the pump
	// blocks inside the callback on the second event.
	events := make(chan agentwire.Event, 1)
	handle, err := d.Start(context.Background(), StartRequest{}, func(ev agentwire.Event) {
		events <- ev
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		ft.stdout("q1", `{"type":"assistant","message":{"role":"assistant","content":"chunk"}}`)
	}

	returned := make(chan struct{})
	go func() {
		handle.Cancel()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel blocked behind the stalled consumer")
	}

	// Draining unblocks the pump and the stream still terminates with
	// cancelled followed by done.
	var got []agentwire.Event
	deadline := time.After(2 * time.Second)
	for {
		var ev agentwire.Event
		select {
		case ev = <-events:
		case <-deadline:
			t.Fatal("timed out waiting for terminal events")
		}
		got = append(got, ev)
		if ev.Type == agentwire.EventDone {
			break
		}
	}
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, agentwire.EventCancelled, got[len(got)-2].Type)
	assert.Equal(t, agentwire.EventDone, got[len(got)-1].Type)
	assert.Equal(t, []string{"q1"}, ft.cancelled)
}

func TestDispatcherUsesSuppliedCorrelationTable(t *testing.T) {
	ft := &fakeTransport{}
	d := New(ft)
	col := newCollector()

	// An entry registered by the session layer must be visible to the
	// classifier: a bare tool_result resolves through the shared table.
	table := agentwire.NewCorrelationTable()
	table.Register("t9", "Grep")

	_, err := d.Start(context.Background(), StartRequest{Correlation: table}, col.onEvent)
	require.NoError(t, err)

	ft.stdout("q1", `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t9","content":"3 matches"}]}}`)
	ft.complete("q1", 0)
	col.waitDone(t)

	events := col.all()
	require.Len(t, events, 2)
	assert.Equal(t, agentwire.EventToolResult, events[0].Type)
	assert.Equal(t, "Grep", events[0].Tool.Name)
	assert.Equal(t, 0, table.Len(), "resolving consumes the entry")
}
