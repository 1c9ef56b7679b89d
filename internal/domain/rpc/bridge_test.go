package rpc

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

type countingObserver struct {
	mu       sync.Mutex
	statuses []string
	late     int
}

func (o *countingObserver) ObserveCall(channel, status string, d time.Duration) {
	o.mu.Lock()
	o.statuses = append(o.statuses, status)
	o.mu.Unlock()
}

func (o *countingObserver) LateResponse() {
	o.mu.Lock()
	o.late++
	o.mu.Unlock()
}

func (o *countingObserver) lateCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.late
}

// fakeTarget hands every sent message to onSend
type fakeTarget struct {
	mu     sync.Mutex
	sent   []Message
	onSend func(Message)
	err    error
}

func (f *fakeTarget) Send(msg Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	onSend, err := f.onSend, f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if onSend != nil {
		onSend(msg)
	}
	return nil
}

func (f *fakeTarget) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

func reply(t *testing.T, b *Bridge, cid string, resp Response) bool {
	t.Helper()
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	return b.Deliver(Message{Channel: ResultChannel(cid), Payload: raw})
}

func TestCallSuccess(t *testing.T) {
	b := NewBridge(nil, nil)
	target := &fakeTarget{}
	target.onSend = func(msg Message) {
		go reply(t, b, msg.CorrelationID, Response{Success: true, Result: json.RawMessage(`"none"`)})
	}

	result, err := b.Call(context.Background(), target, "get-plugin-mode", map[string]string{"featureCode": "ocr"}, time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `"none"`, string(result))
	assert.Equal(t, 0, b.Pending())

	sent := target.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "get-plugin-mode", sent[0].Channel)
	assert.JSONEq(t, `{"featureCode":"ocr"}`, string(sent[0].Payload))
	assert.NotEmpty(t, sent[0].CorrelationID)
}

func TestCallSynchronousReply(t *testing.T) {
	b := NewBridge(nil, nil)
	target := &fakeTarget{}
	target.onSend = func(msg Message) {
		reply(t, b, msg.CorrelationID, Response{Success: true, Result: json.RawMessage(`1`)})
	}

	result, err := b.Call(context.Background(), target, "ping", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", string(result))
}

func TestCallRemoteError(t *testing.T) {
	b := NewBridge(nil, nil)
	target := &fakeTarget{}
	target.onSend = func(msg Message) {
		go reply(t, b, msg.CorrelationID, Response{Success: false, Error: "no such feature"})
	}

	_, err := b.Call(context.Background(), target, "call-plugin-method", nil, time.Second)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "no such feature", remote.Message)
	assert.Equal(t, "call-plugin-method", remote.Channel)
}

func TestTimeoutThenLateResponseIsDropped(t *testing.T) {
	obs := &countingObserver{}
	b := NewBridge(nil, obs)
	target := &fakeTarget{}

	start := time.Now()
	_, err := b.Call(context.Background(), target, "get-plugin-mode", nil, 30*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, b.Pending())

	cid := target.messages()[0].CorrelationID
	handled := reply(t, b, cid, Response{Success: true, Result: json.RawMessage(`"none"`)})
	assert.True(t, handled)
	assert.Equal(t, 1, obs.lateCount())
	assert.Equal(t, []string{"timeout"}, obs.statuses)
}

func TestSettlesExactlyOnceUnderRace(t *testing.T) {
	obs := &countingObserver{}
	b := NewBridge(nil, obs)

	const calls = 50
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		target := &fakeTarget{}
		target.onSend = func(msg Message) {
			// answer right around the deadline
			go func() {
				time.Sleep(5 * time.Millisecond)
				reply(t, b, msg.CorrelationID, Response{Success: true})
				reply(t, b, msg.CorrelationID, Response{Success: true})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Call(context.Background(), target, "race", nil, 5*time.Millisecond)
			if err != nil {
				assert.ErrorIs(t, err, ErrTimeout)
			}
		}()
	}
	wg.Wait()

	obs.mu.Lock()
	settled := len(obs.statuses)
	obs.mu.Unlock()
	assert.Equal(t, calls, settled)

	// two replies per call: answered calls drop one, timed-out calls drop both
	want := calls + countTimeouts(obs)
	assert.Eventually(t, func() bool { return obs.lateCount() == want }, time.Second, time.Millisecond)
	assert.Equal(t, 0, b.Pending())
}

func countTimeouts(o *countingObserver) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, s := range o.statuses {
		if s == "timeout" {
			n++
		}
	}
	return n
}

func TestContextCancellation(t *testing.T) {
	b := NewBridge(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	target := &fakeTarget{onSend: func(Message) { cancel() }}

	_, err := b.Call(ctx, target, "slow", nil, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, b.Pending())
}

func TestSendFailure(t *testing.T) {
	b := NewBridge(nil, nil)
	target := &fakeTarget{err: errors.New("surface destroyed")}

	_, err := b.Call(context.Background(), target, "get-plugin-mode", nil, time.Second)
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.Equal(t, 0, b.Pending())

	assert.ErrorIs(t, b.Notify(target, "plugin-out", true), ErrSendFailed)
}

func TestCloseTarget(t *testing.T) {
	b := NewBridge(nil, nil)
	target := &fakeTarget{}
	other := &fakeTarget{}

	errs := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background(), target, "call-plugin-method", nil, time.Minute)
		errs <- err
	}()

	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, b.CloseTarget(other))
	assert.Equal(t, 1, b.CloseTarget(target))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrTargetClosed)
	case <-time.After(time.Second):
		t.Fatal("call did not settle after target close")
	}
}

func TestDeliverRouting(t *testing.T) {
	b := NewBridge(nil, nil)

	assert.False(t, b.Deliver(Message{Channel: "custom-event"}))
	assert.True(t, b.Deliver(Message{Channel: "result-unknown"}))
}

func TestMalformedResponse(t *testing.T) {
	b := NewBridge(nil, nil)
	target := &fakeTarget{}
	target.onSend = func(msg Message) {
		go b.Deliver(Message{Channel: ResultChannel(msg.CorrelationID), Payload: json.RawMessage(`{"success":`)})
	}

	_, err := b.Call(context.Background(), target, "get-plugin-mode", nil, time.Second)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestNotify(t *testing.T) {
	b := NewBridge(nil, nil)
	target := &fakeTarget{}

	require.NoError(t, b.Notify(target, "plugin-out", true))
	sent := target.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "plugin-out", sent[0].Channel)
	assert.Equal(t, "true", string(sent[0].Payload))
	assert.Empty(t, sent[0].CorrelationID)
}

func TestResultID(t *testing.T) {
	assert.Equal(t, "call_1", Message{Channel: "result-call_1"}.ResultID())
	assert.Equal(t, "call_2", Message{Channel: "result-", CorrelationID: "call_2"}.ResultID())
	assert.False(t, Message{Channel: "plugin-out"}.IsResult())
}
