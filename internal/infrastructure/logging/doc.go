// Package logging builds the zap loggers used by the document worker host.
//
// New produces JSON output in production and colored console output in
// development, with its level held in a zap.AtomicLevel so SetLevel can
// change it while the server runs (see PUT /admin/log-level).
//
// Nop discards everything. Wrap adopts a logger built elsewhere, such as an
// observer core in tests; its level can move up and back down, but never
// below the lowest level the wrapped core enables.
//
// ForComponent names a subsystem logger ("registry", "ws", "http"). Workers
// add their session and connection ids as fields on top of that.
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger.ForComponent("registry").Info("Fetched package", zap.String("locator", url))
package logging
