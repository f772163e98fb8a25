// Package fault provides the structured error type for worker boot failures.
//
// Errors carry a Kind (machine-distinguishable category) and a Summary: the
// single human-readable line that is forwarded to the control side as a
// status message. The underlying cause is kept for logs and errors.Is/As.
//
//	err := fault.New(fault.KindExecution).
//		Summary("ReferenceError: pn is not defined").
//		Cause(jsErr).
//		Build()
package fault
