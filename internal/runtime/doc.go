/*
Package runtime hosts the embedded JavaScript runtime a worker executes
application code in.

A Loader boots exactly one Handle per worker lifetime. The Handle owns a goja
VM together with the live document the application builds, and exposes the
pieces the rest of the worker needs:

  - Run executes a named script, interrupting it when the context ends
  - InstallModule adds a CommonJS module that scripts can require
  - Document returns the live document bound as the global "doc"

Scripts see these globals:

	doc       document builder (model, addRoot, removeRoot, setTitle, get)
	location  read-only mirror of the control side location (get, on)
	require   installed modules
	console   forwarded to the worker logger

process, module and exports are removed from the global scope and timers are
inert. A Handle is not safe for concurrent use; it belongs to the worker
goroutine that loaded it.
*/
package runtime
