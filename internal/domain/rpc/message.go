package rpc

import (
	"encoding/json"
	"strings"
)

// ResultPrefix starts the channel a surface answers a call on
const ResultPrefix = "result-"

// Message is the envelope exchanged with a plugin surface in both directions
type Message struct {
	Channel       string          `json:"channel"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// Response is the payload of a result-<id> message
type Response struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ResultChannel returns the channel a surface answers correlation id on
func ResultChannel(correlationID string) string {
	return ResultPrefix + correlationID
}

// IsResult reports whether msg answers an earlier call
func (m Message) IsResult() bool {
	return strings.HasPrefix(m.Channel, ResultPrefix)
}

// ResultID extracts the correlation id from a result channel
func (m Message) ResultID() string {
	if id := strings.TrimPrefix(m.Channel, ResultPrefix); id != m.Channel && id != "" {
		return id
	}
	return m.CorrelationID
}
