package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/shared/id"
)

// Target is anything that accepts envelopes, normally a plugin surface
type Target interface {
	Send(msg Message) error
}

// Observer receives call metrics
type Observer interface {
	ObserveCall(channel, status string, duration time.Duration)
	LateResponse()
}

type nopObserver struct{}

func (nopObserver) ObserveCall(string, string, time.Duration) {}
func (nopObserver) LateResponse()                             {}

type outcome struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	channel string
	target  Target
	done    chan outcome // buffered(1), written once by whoever removed the entry
}

// Bridge pairs outgoing calls with their responses. A call is settled by
// whichever of response, timeout, cancellation or target close first removes
// it from the pending table; everything after that is dropped.
type Bridge struct {
	log      *zap.Logger
	observer Observer

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// NewBridge creates a bridge; observer may be nil
func NewBridge(log *zap.Logger, observer Observer) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Bridge{
		log:      log,
		observer: observer,
		pending:  make(map[string]*pendingCall),
	}
}

// Call sends channel+payload to target and waits for the matching response
func (b *Bridge) Call(ctx context.Context, target Target, channel string, payload any, timeout time.Duration) (json.RawMessage, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", channel, err)
	}

	cid := id.NewCorrelationID().String()
	start := time.Now()
	p := &pendingCall{
		channel: channel,
		target:  target,
		done:    make(chan outcome, 1),
	}

	b.mu.Lock()
	b.pending[cid] = p
	b.mu.Unlock()

	// Timer first so a synchronous answer from Send still races correctly
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if err := target.Send(Message{Channel: channel, Payload: raw, CorrelationID: cid}); err != nil {
		if b.take(cid) != nil {
			b.observer.ObserveCall(channel, "send_failed", time.Since(start))
			return nil, fmt.Errorf("%w: %s: %v", ErrSendFailed, channel, err)
		}
		// A response raced the error; take what it delivered
		return b.finish(channel, start, <-p.done)
	}

	select {
	case out := <-p.done:
		return b.finish(channel, start, out)
	case <-timer.C:
		if b.take(cid) != nil {
			b.log.Debug("rpc call timed out",
				zap.String("channel", channel),
				zap.String("correlation_id", cid),
				zap.Duration("timeout", timeout))
			b.observer.ObserveCall(channel, "timeout", time.Since(start))
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, channel, timeout)
		}
		return b.finish(channel, start, <-p.done)
	case <-ctx.Done():
		if b.take(cid) != nil {
			b.observer.ObserveCall(channel, "canceled", time.Since(start))
			return nil, ctx.Err()
		}
		return b.finish(channel, start, <-p.done)
	}
}

func (b *Bridge) finish(channel string, start time.Time, out outcome) (json.RawMessage, error) {
	status := "ok"
	if out.err != nil {
		status = "error"
	}
	b.observer.ObserveCall(channel, status, time.Since(start))
	return out.result, out.err
}

// Notify sends a one-way message
func (b *Bridge) Notify(target Target, channel string, payload any) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}
	if err := target.Send(Message{Channel: channel, Payload: raw}); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSendFailed, channel, err)
	}
	return nil
}

// Deliver routes an inbound message. It reports true when the message was a
// call result, whether or not a pending call was still waiting for it.
func (b *Bridge) Deliver(msg Message) bool {
	if !msg.IsResult() {
		return false
	}

	cid := msg.ResultID()
	p := b.take(cid)
	if p == nil {
		b.observer.LateResponse()
		b.log.Debug("dropping late rpc response", zap.String("correlation_id", cid))
		return true
	}

	var resp Response
	if err := sonic.Unmarshal(msg.Payload, &resp); err != nil {
		p.done <- outcome{err: fmt.Errorf("%w: %s: %v", ErrBadResponse, p.channel, err)}
		return true
	}
	if !resp.Success {
		p.done <- outcome{err: &RemoteError{Channel: p.channel, Message: resp.Error}}
		return true
	}
	p.done <- outcome{result: resp.Result}
	return true
}

// CloseTarget fails every call still waiting on target
func (b *Bridge) CloseTarget(target Target) int {
	b.mu.Lock()
	var closed []*pendingCall
	for cid, p := range b.pending {
		if p.target == target {
			delete(b.pending, cid)
			closed = append(closed, p)
		}
	}
	b.mu.Unlock()

	for _, p := range closed {
		p.done <- outcome{err: fmt.Errorf("%w: %s", ErrTargetClosed, p.channel)}
	}
	return len(closed)
}

// Pending returns the number of unsettled calls
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// take removes and returns the pending call; nil when already settled
func (b *Bridge) take(cid string) *pendingCall {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[cid]
	if !ok {
		return nil
	}
	delete(b.pending, cid)
	return p
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return sonic.Marshal(v)
	}
}
