package jsvm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/launcher/internal/domain/lifecycle"
	"github.com/GriffinCanCode/launcher/internal/domain/rpc"
)

// setupGlobals installs the plugin-facing globals. Node-style module access
// is removed; plugins talk to the launcher only through the host object.
func (s *Surface) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := s.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := s.vm.NewObject()
	console.Set("log", s.makeConsoleFunc("log"))
	console.Set("info", s.makeConsoleFunc("info"))
	console.Set("warn", s.makeConsoleFunc("warn"))
	console.Set("error", s.makeConsoleFunc("error"))
	if err := s.vm.Set("console", console); err != nil {
		return err
	}

	if err := s.vm.Set("setTimeout", s.setTimeout); err != nil {
		return err
	}
	if err := s.vm.Set("clearTimeout", s.clearTimeout); err != nil {
		return err
	}

	host := s.vm.NewObject()
	host.Set("id", s.id.String())
	host.Set("on", s.jsOn)
	host.Set("send", s.jsSend)
	host.Set("reply", s.jsReply)
	host.Set("feature", s.jsFeature)
	host.Set("mode", s.jsMode)
	return s.vm.Set("host", host)
}

func (s *Surface) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		s.mu.Lock()
		if len(s.console) >= s.cfg.ConsoleLimit {
			s.console = s.console[1:]
		}
		s.console = append(s.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
		s.mu.Unlock()

		s.log.Debug("Plugin console", zap.String("level", level), zap.String("message", msg))
		return goja.Undefined()
	}
}

// ============================================================================
// Timers
// ============================================================================

func (s *Surface) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return goja.Undefined()
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.terminated {
		return goja.Undefined()
	}
	s.nextTimer++
	tid := s.nextTimer
	s.timers[tid] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[tid]
		delete(s.timers, tid)
		s.mu.Unlock()
		if !live {
			return
		}
		_ = s.enqueue(func() error {
			_, err := fn(goja.Undefined(), args...)
			return err
		})
	})
	return s.vm.ToValue(tid)
}

func (s *Surface) clearTimeout(call goja.FunctionCall) goja.Value {
	tid := call.Argument(0).ToInteger()
	s.mu.Lock()
	if t, ok := s.timers[tid]; ok {
		t.Stop()
		delete(s.timers, tid)
	}
	s.mu.Unlock()
	return goja.Undefined()
}

// ============================================================================
// host object
// ============================================================================

// host.on(channel, fn): fn(payload, correlationId)
func (s *Surface) jsOn(call goja.FunctionCall) goja.Value {
	channel := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(s.vm.NewTypeError("host.on: handler for %q must be a function", channel))
	}
	s.handlers[channel] = fn
	return goja.Undefined()
}

// host.send(channel, payload)
func (s *Surface) jsSend(call goja.FunctionCall) goja.Value {
	channel := call.Argument(0).String()
	raw, err := s.toJSON(call.Argument(1))
	if err != nil {
		panic(s.vm.NewTypeError("host.send: %v", err))
	}
	s.deliver(rpc.Message{Channel: channel, Payload: raw})
	return goja.Undefined()
}

// host.reply(correlationId, result, error)
func (s *Surface) jsReply(call goja.FunctionCall) goja.Value {
	cid := call.Argument(0).String()
	var callErr error
	if e := call.Argument(2); !goja.IsUndefined(e) && !goja.IsNull(e) {
		callErr = errors.New(e.String())
	}
	s.respond(cid, call.Argument(1), callErr)
	return goja.Undefined()
}

// host.feature(code, fn): fn(action) answers call-plugin-method for code
func (s *Surface) jsFeature(call goja.FunctionCall) goja.Value {
	code := call.Argument(0).String()
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(s.vm.NewTypeError("host.feature: handler for %q must be a function", code))
	}
	s.features[code] = fn
	return goja.Undefined()
}

// host.mode(value) where value is a mode string or fn(featureCode)
func (s *Surface) jsMode(call goja.FunctionCall) goja.Value {
	s.mode = call.Argument(0)
	return goja.Undefined()
}

// ============================================================================
// Dispatch
// ============================================================================

func (s *Surface) dispatch(msg rpc.Message) error {
	switch msg.Channel {
	case lifecycle.ChannelPluginMode:
		return s.answerMode(msg)
	case lifecycle.ChannelCallMethod:
		return s.answerMethod(msg)
	}

	fn, ok := s.handlers[msg.Channel]
	if !ok {
		return nil
	}
	_, err := fn(goja.Undefined(), s.fromJSON(msg.Payload), s.vm.ToValue(msg.CorrelationID))
	return err
}

// emitLocal calls a handler the host triggers itself (focus, input)
func (s *Surface) emitLocal(channel string, arg goja.Value) error {
	fn, ok := s.handlers[channel]
	if !ok {
		return nil
	}
	_, err := fn(goja.Undefined(), arg)
	return err
}

// answerMode replies only when the plugin registered a mode; otherwise the
// caller's timeout decides.
func (s *Surface) answerMode(msg rpc.Message) error {
	if s.mode == nil || goja.IsUndefined(s.mode) || goja.IsNull(s.mode) {
		return nil
	}
	var req struct {
		FeatureCode string `json:"featureCode"`
	}
	_ = sonic.Unmarshal(msg.Payload, &req)

	answer := s.mode
	if fn, ok := goja.AssertFunction(s.mode); ok {
		out, err := fn(goja.Undefined(), s.vm.ToValue(req.FeatureCode))
		if err != nil {
			if fatal(err) {
				return err
			}
			s.respond(msg.CorrelationID, nil, err)
			return nil
		}
		answer = out
	}
	s.respond(msg.CorrelationID, answer, nil)
	return nil
}

func (s *Surface) answerMethod(msg rpc.Message) error {
	var req struct {
		FeatureCode string          `json:"featureCode"`
		Action      json.RawMessage `json:"action"`
	}
	if err := sonic.Unmarshal(msg.Payload, &req); err != nil {
		s.respond(msg.CorrelationID, nil, fmt.Errorf("decode call: %w", err))
		return nil
	}

	fn, ok := s.features[req.FeatureCode]
	if !ok {
		s.respond(msg.CorrelationID, nil, fmt.Errorf("feature %q has no handler", req.FeatureCode))
		return nil
	}

	out, err := fn(goja.Undefined(), s.fromJSON(req.Action))
	if err != nil {
		if fatal(err) {
			return err
		}
		s.respond(msg.CorrelationID, nil, err)
		return nil
	}
	s.respond(msg.CorrelationID, out, nil)
	return nil
}

// respond delivers a result message for cid, waiting on promises
func (s *Surface) respond(cid string, v goja.Value, callErr error) {
	if cid == "" {
		return
	}
	if callErr == nil && v != nil {
		if p, ok := v.Export().(*goja.Promise); ok {
			s.settle(cid, v, p)
			return
		}
	}

	resp := rpc.Response{Success: callErr == nil}
	if callErr != nil {
		resp.Error = errorMessage(callErr)
	} else if raw, err := s.toJSON(v); err != nil {
		resp.Success = false
		resp.Error = err.Error()
	} else {
		resp.Result = raw
	}

	payload, err := sonic.Marshal(resp)
	if err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
		return
	}
	s.deliver(rpc.Message{Channel: rpc.ResultChannel(cid), Payload: payload, CorrelationID: cid})
}

func (s *Surface) settle(cid string, v goja.Value, p *goja.Promise) {
	switch p.State() {
	case goja.PromiseStateFulfilled:
		s.respond(cid, p.Result(), nil)
		return
	case goja.PromiseStateRejected:
		s.respond(cid, nil, errors.New(p.Result().String()))
		return
	}

	then, ok := goja.AssertFunction(v.ToObject(s.vm).Get("then"))
	if !ok {
		s.respond(cid, nil, errors.New("pending promise has no then"))
		return
	}
	onFulfilled := s.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		s.respond(cid, call.Argument(0), nil)
		return goja.Undefined()
	})
	onRejected := s.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		s.respond(cid, nil, errors.New(call.Argument(0).String()))
		return goja.Undefined()
	})
	if _, err := then(v, onFulfilled, onRejected); err != nil {
		s.respond(cid, nil, err)
	}
}

func (s *Surface) deliver(msg rpc.Message) {
	s.mu.Lock()
	fn := s.onMessage
	s.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// ============================================================================
// Value conversion
// ============================================================================

func (s *Surface) toJSON(v goja.Value) (json.RawMessage, error) {
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}
	data, err := sonic.Marshal(v.Export())
	if err != nil {
		return nil, fmt.Errorf("value is not serializable: %w", err)
	}
	return data, nil
}

func (s *Surface) fromJSON(raw json.RawMessage) goja.Value {
	if len(raw) == 0 {
		return goja.Undefined()
	}
	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return goja.Undefined()
	}
	return s.vm.ToValue(v)
}

// valueOf converts a Go struct through its JSON form so plugins see the
// wire field names
func (s *Surface) valueOf(v any) goja.Value {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return goja.Undefined()
	}
	return s.fromJSON(raw)
}

// fatal reports errors that must end the surface rather than be returned to
// a caller
func fatal(err error) bool {
	var interrupted *goja.InterruptedError
	return errors.As(err, &interrupted)
}

func errorMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.Value().String()
	}
	return err.Error()
}
