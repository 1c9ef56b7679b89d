// Package rpc implements request/response calls over a plugin surface's
// message channel.
//
// A call travels as {channel, payload, correlationId}; the plugin answers on
// channel "result-<correlationId>" with {success, result, error}. Each call
// settles exactly once. Responses arriving after the timeout are dropped and
// counted.
package rpc
