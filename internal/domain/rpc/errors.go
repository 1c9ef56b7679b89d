package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout      = errors.New("rpc call timed out")
	ErrSendFailed   = errors.New("rpc send failed")
	ErrTargetClosed = errors.New("rpc target closed")
	ErrBadResponse  = errors.New("rpc response malformed")
)

// RemoteError is a failure reported by the plugin itself
type RemoteError struct {
	Channel string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("plugin rejected %s: %s", e.Channel, e.Message)
}
