// Package ws streams connectivity state to WebSocket clients.
//
// Message Types (Server → Client):
//   - state: current snapshot, sent once on connect
//   - transition: one per phase change of the monitor
//   - pong: reply to a client ping
//
// Message Types (Client → Server):
//   - ping: keep-alive
//
// Example Usage:
//
//	handler := ws.NewHandler(monitor, metrics, logger)
//	router.GET("/events", handler.HandleConnection)
package ws
