// Package protocol defines the boundary message vocabulary shared by the
// worker and the control side.
//
// Every message is a tagged record. The vocabulary is fixed:
//
// Outbound (worker → control):
//   - status: human-readable progress or error text
//   - render: the initial document snapshot
//   - patch: an outbound document delta plus binary buffers
//   - idle: the most recent inbound patch has been applied
//
// Inbound (control → worker):
//   - rendered: the view is live, activate synchronization
//   - patch: a delta to apply to the live document
//   - location: a JSON-encoded location mapping
//
// There are no correlation IDs and no version field; sequencing is implied
// by the worker's state machine and the in-order Channel.
package protocol
