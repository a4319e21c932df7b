package bridge

import (
	"go.uber.org/zap"

	"github.com/FujiwaraChoki/mensa-sub000/dispatch"
)

const feedBuffer = 256

// SubscribeStdout returns a feed of stdout lines from every bridge
// process. The unsubscribe function detaches the feed; the channel is
// never closed.
func (b *Bridge) SubscribeStdout() (<-chan dispatch.Line, func()) {
	ch := make(chan dispatch.Line, feedBuffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.stdoutSubs[id] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.stdoutSubs, id)
		b.mu.Unlock()
	}
}

// SubscribeStderr returns a feed of stderr lines from every bridge
// process.
func (b *Bridge) SubscribeStderr() (<-chan dispatch.Line, func()) {
	ch := make(chan dispatch.Line, feedBuffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.stderrSubs[id] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.stderrSubs, id)
		b.mu.Unlock()
	}
}

// SubscribeCompletion returns a feed of process exit reports.
func (b *Bridge) SubscribeCompletion() (<-chan dispatch.Completion, func()) {
	ch := make(chan dispatch.Completion, feedBuffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.doneSubs[id] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.doneSubs, id)
		b.mu.Unlock()
	}
}

func (b *Bridge) publishStdout(queryID, text string) {
	b.mu.Lock()
	subs := make([]chan dispatch.Line, 0, len(b.stdoutSubs))
	for _, ch := range b.stdoutSubs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- dispatch.Line{QueryID: queryID, Text: text}:
		default:
			// A detached or wedged subscriber must not stall the
			// bridge process readers.
			b.log.Warn("stdout feed full, dropping line", zap.String("query_id", queryID))
		}
	}
}

func (b *Bridge) publishStderr(queryID, text string) {
	b.mu.Lock()
	subs := make([]chan dispatch.Line, 0, len(b.stderrSubs))
	for _, ch := range b.stderrSubs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- dispatch.Line{QueryID: queryID, Text: text}:
		default:
			b.log.Warn("stderr feed full, dropping line", zap.String("query_id", queryID))
		}
	}
}

func (b *Bridge) publishCompletion(queryID string, code int) {
	b.mu.Lock()
	subs := make([]chan dispatch.Completion, 0, len(b.doneSubs))
	for _, ch := range b.doneSubs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- dispatch.Completion{QueryID: queryID, Code: code}:
		default:
			b.log.Warn("completion feed full, dropping report", zap.String("query_id", queryID))
		}
	}
}
