// Package ws carries the worker boundary over WebSocket.
//
// Every connection gets its own worker. Text frames from the peer are
// decoded into protocol messages and delivered in order to the worker's
// inbox; everything the worker posts is written back as a text frame.
//
// Message Types (Client → Server):
//   - rendered: The view has mounted the initial render
//   - patch: A view-side change to apply to the document
//   - location: A JSON-encoded location mapping
//
// Message Types (Server → Client):
//   - status: Progress line for the loading indicator
//   - render: Initial document snapshot
//   - patch: Document change produced by the application
//   - idle: Acknowledges one inbound patch
//
// When the worker ends, the connection is closed with a normal close code,
// or with an internal error code carrying the one-line failure summary.
//
// Example Usage:
//
//	handler := ws.NewHandler(ws.DefaultConfig(), factory, metrics, logger)
//	router.GET("/worker", handler.HandleConnection)
package ws
