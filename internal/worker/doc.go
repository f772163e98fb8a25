/*
Package worker runs one document worker: it boots the runtime, installs
dependencies, executes the application payload, posts the initial render and
then routes boundary messages until the control side goes away.

	Booting --render posted--> Booted --rendered--> Linked
	   |
	   +--fatal boot error--> Failed

Inbound messages are handled one at a time, in arrival order, on the
goroutine that called Run. Messages that do not fit the current state are
dropped, logged and counted; a dropped patch is still acknowledged with idle.
*/
package worker
