// Package ws pushes import and transfer events to the presentation layer.
//
// Message Types (Server → Client):
//   - system: connection greeting
//   - progress.show: an import started, show blocking progress
//   - progress.dismiss: an import ended
//   - transfer.present: a transfer session is ready, with its URL
//   - transfer.closed: a transfer session was torn down
//   - pong: reply to ping
//
// Message Types (Client → Server):
//   - ping: keep-alive
//
// Example Usage:
//
//	hub := ws.NewHub(logger, metrics)
//	router.GET("/ws", hub.HandleConnection)
package ws
