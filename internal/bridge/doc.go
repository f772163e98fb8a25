/*
Package bridge keeps the live document and the control side's rendered view
in sync once the first render has been acknowledged.

After Link, every document mutation made inside the worker is posted as a
patch message. Inbound patches are applied tagged as external so they are
not echoed back, and every applied patch is acknowledged with idle.
Location updates are merged into the document's read-only location under a
scoped edit. Before Link the bridge is inert.
*/
package bridge
