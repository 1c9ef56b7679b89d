// Package ws streams lifecycle events to the launcher front-end.
//
// Each connection subscribes to every event on the bus and receives JSON
// frames:
//
//	{"type": "plugin.opened", "timestamp": 1700000000000, "data": {...}}
//
// The first frame is {"type": "system"}. A client may send {"type": "ping"}
// and gets {"type": "pong"} back; the server also sends WebSocket pings.
//
// Example Usage:
//
//	handler := ws.NewHandler(bus, metrics, log)
//	router.GET("/events", handler.HandleConnection)
package ws
