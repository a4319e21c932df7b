package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
)

const defaultCancelTimeout = 5 * time.Second

// Dispatcher launches queries on a Transport and turns the host's shared
// output feeds into classified per-query events.
type Dispatcher struct {
	transport     Transport
	log           *zap.Logger
	cancelTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// WithCancelTimeout bounds how long Cancel waits for the host to
// acknowledge before reporting the cancellation as unconfirmed.
func WithCancelTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.cancelTimeout = timeout
	}
}

// New creates a Dispatcher over the given transport.
func New(transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:     transport,
		log:           zap.NewNop(),
		cancelTimeout: defaultCancelTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches one query and streams its classified events to onEvent.
// Every event carries the query id. onEvent is never invoked concurrently.
//
// The returned handle cancels the query; the caller owns its lifetime.
// If the transport refuses the query, Start synthesizes an error event
// followed by done, and returns the transport error with an inert handle.
func (d *Dispatcher) Start(ctx context.Context, req StartRequest, onEvent func(agentwire.Event)) (*QueryHandle, error) {
	sink := &eventSink{fn: onEvent}

	table := req.Correlation
	if table == nil {
		table = agentwire.NewCorrelationTable()
	}

	// Subscribe before starting: the host may publish lines for this
	// query before StartQuery hands back the id.
	stdout, unsubOut := d.transport.SubscribeStdout()
	stderr, unsubErr := d.transport.SubscribeStderr()
	completions, unsubDone := d.transport.SubscribeCompletion()

	p := &pump{
		log:         d.log,
		sink:        sink,
		stdout:      stdout,
		stderr:      stderr,
		completions: completions,
		unsubscribe: func() {
			unsubOut()
			unsubErr()
			unsubDone()
		},
		corr:   table,
		idCh:   make(chan string, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go p.run()

	queryID, err := d.transport.StartQuery(ctx, req)
	if err != nil {
		close(p.idCh)
		<-p.doneCh
		startErr := &StartError{Cause: err, Workspace: req.Workspace}
		sink.emit(agentwire.Event{Type: agentwire.EventError, Err: startErr.Error()})
		sink.emit(agentwire.Event{Type: agentwire.EventDone})
		sink.close()
		return &QueryHandle{sink: sink, inert: true}, startErr
	}
	p.idCh <- queryID

	d.log.Debug("query started",
		zap.String("query_id", queryID),
		zap.String("workspace", req.Workspace))

	return &QueryHandle{
		ID:            queryID,
		transport:     d.transport,
		sink:          sink,
		pump:          p,
		cancelTimeout: d.cancelTimeout,
	}, nil
}

// pump is the per-query demux loop. It owns the three shared feeds for the
// lifetime of one query: buffers every tuple until the query id is known,
// replays the matching ones, and filters from then on.
type pump struct {
	log         *zap.Logger
	sink        *eventSink
	stdout      <-chan Line
	stderr      <-chan Line
	completions <-chan Completion
	unsubscribe func()
	corr        *agentwire.CorrelationTable

	idCh   chan string
	stopCh chan struct{}
	doneCh chan struct{}

	queryID    string
	stderrTail []string
}

func (p *pump) run() {
	defer close(p.doneCh)
	defer p.unsubscribe()

	var (
		bufOut  []Line
		bufErr  []Line
		bufDone []Completion
	)
	idCh := p.idCh

	for {
		select {
		case <-p.stopCh:
			return

		case id, ok := <-idCh:
			if !ok {
				// StartQuery failed; nothing to replay.
				return
			}
			p.queryID = id
			idCh = nil
			for _, l := range bufErr {
				if l.QueryID == id {
					p.handleStderr(l.Text)
				}
			}
			for _, l := range bufOut {
				if l.QueryID == id {
					p.handleStdout(l.Text)
				}
			}
			for _, c := range bufDone {
				if c.QueryID == id {
					p.drainPending()
					p.finish(c.Code)
					return
				}
			}
			bufOut, bufErr, bufDone = nil, nil, nil

		case l, ok := <-p.stdout:
			if !ok {
				return
			}
			if p.queryID == "" {
				bufOut = append(bufOut, l)
			} else if l.QueryID == p.queryID {
				p.handleStdout(l.Text)
			}

		case l, ok := <-p.stderr:
			if !ok {
				return
			}
			if p.queryID == "" {
				bufErr = append(bufErr, l)
			} else if l.QueryID == p.queryID {
				p.handleStderr(l.Text)
			}

		case c, ok := <-p.completions:
			if !ok {
				return
			}
			if p.queryID == "" {
				bufDone = append(bufDone, c)
			} else if c.QueryID == p.queryID {
				// Output queued behind the completion still belongs
				// to this query; flush it before the terminal events.
				p.drainPending()
				p.finish(c.Code)
				return
			}
		}
	}
}

func (p *pump) drainPending() {
	for {
		select {
		case l, ok := <-p.stdout:
			if !ok {
				return
			}
			if l.QueryID == p.queryID {
				p.handleStdout(l.Text)
			}
		case l, ok := <-p.stderr:
			if !ok {
				return
			}
			if l.QueryID == p.queryID {
				p.handleStderr(l.Text)
			}
		default:
			return
		}
	}
}

func (p *pump) handleStdout(line string) {
	for _, ev := range agentwire.Classify([]byte(line), p.corr) {
		ev.QueryID = p.queryID
		p.sink.emit(ev)
	}
}

func (p *pump) handleStderr(line string) {
	if diagnosticLine(line) {
		p.log.Debug("host diagnostic", zap.String("query_id", p.queryID), zap.String("line", line))
		return
	}
	p.stderrTail = append(p.stderrTail, line)
}

func (p *pump) finish(code int) {
	if code != 0 {
		qerr := &QueryError{
			QueryID: p.queryID,
			Code:    code,
			Stderr:  strings.Join(p.stderrTail, "\n"),
		}
		p.sink.emit(agentwire.Event{
			Type:    agentwire.EventError,
			QueryID: p.queryID,
			Err:     qerr.Error(),
		})
	}
	p.sink.emit(agentwire.Event{Type: agentwire.EventDone, QueryID: p.queryID})
	p.sink.close()
}

// diagnosticLine reports stderr noise that should never surface as a
// query error: host debug output and Node runtime warnings.
func diagnosticLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	for _, prefix := range []string{"[DEBUG]", "[INFO]", "(node:", "npm warn"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return strings.Contains(trimmed, "ExperimentalWarning")
}

// eventSink serializes event delivery and suppresses anything emitted
// after the query reached a terminal state.
type eventSink struct {
	mu     sync.Mutex
	fn     func(agentwire.Event)
	closed bool
}

func (s *eventSink) emit(ev agentwire.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.fn == nil {
		return
	}
	s.fn(ev)
}

func (s *eventSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
