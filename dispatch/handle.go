package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/FujiwaraChoki/mensa-sub000/agentwire"
)

// QueryHandle controls one in-flight query. A handle returned from a
// failed Start is inert: Cancel does nothing.
type QueryHandle struct {
	ID string

	transport     Transport
	sink          *eventSink
	pump          *pump
	cancelTimeout time.Duration
	inert         bool

	once sync.Once
}

// Cancel tears the query down. It signals the pump to stop and returns
// immediately; a background goroutine asks the host to terminate the
// query and synthesizes a cancelled event followed by done. Cancel never
// blocks, so the caller's event loop can keep draining while the pump
// finishes any in-flight delivery.
//
// CancelQuery is best effort with a bounded deadline: when the host never
// acknowledges, the terminal state still lands locally and the cancelled
// event carries an "unconfirmed" reason. Idempotent, and a no-op once the
// query already completed.
func (h *QueryHandle) Cancel() {
	h.once.Do(func() {
		if h.inert {
			return
		}

		close(h.pump.stopCh)

		go func() {
			// The pump may be parked inside the consumer callback. Wait
			// for it off the caller's goroutine so the caller can keep
			// consuming events and unblock it.
			<-h.pump.doneCh
			if h.Done() {
				// Completed naturally before the stop signal landed.
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), h.cancelTimeout)
			defer cancel()
			err := h.transport.CancelQuery(ctx, h.ID)

			ev := agentwire.Event{Type: agentwire.EventCancelled, QueryID: h.ID}
			if err != nil {
				ev.Reason = "unconfirmed"
			}
			h.sink.emit(ev)
			h.sink.emit(agentwire.Event{Type: agentwire.EventDone, QueryID: h.ID})
			h.sink.close()
		}()
	})
}

// Done reports whether the query reached a terminal state.
func (h *QueryHandle) Done() bool {
	if h.inert {
		return true
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	return h.sink.closed
}
