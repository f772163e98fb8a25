/*
Package document implements the reactive document model that application
code builds inside the embedded runtime.

# Overview

A Document is a flat graph of models (id, type, attributes) with an ordered
list of roots and a title. Every mutation is tagged with a Setter and
produces an Event delivered to registered callbacks. Callbacks use the
setter to tell locally originated changes from ones applied on behalf of the
control side, which is how the sync bridge avoids echoing patches.

# Patches

A Patch is a list of events plus the definitions of models the receiver has
not seen yet:

	{"events": [{"kind": "ModelChanged", "model": {"id": "p1003"}, "attr": "value", "new": 1975}],
	 "references": [{"id": "p1009", "type": "Table", "attributes": {...}}]}

Byte slice attribute values are moved out of the JSON into a separate buffer
list and replaced by {"__buffer__": "<index>"}.

# Snapshots

Snapshot serializes the whole document into the three artifacts the control
side needs for its first render: docs_json, render_items and root_ids.

# Location

Each document carries a Location mirroring the control side's navigable
state. It is read-only outside EditReadonly.
*/
package document
