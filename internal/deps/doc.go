/*
Package deps installs the dependencies an application declares before it
runs.

Descriptors are either direct identifiers ("markdown", "panel==1.2") or
package-file locators ending in .whl, local or http(s). The Installer walks
the list in order, reports progress on the boundary port and keeps going
when a single dependency fails; only the Resolver knows where packages come
from.

The Registry resolver serves three sources:

  - http(s) locators, fetched with retry and a request rate limit, behind
    a circuit breaker per host
  - local .whl and .tgz files
  - bare names, looked up in a registry directory as <name>.js,
    <name>/index.js or <name>-*.whl (a .tgz works in place of any .whl)

A .whl is a zip archive whose .js entries are installed as <pkg>/<path>,
with index.js as the package entry. A .tgz is the gzipped tar equivalent.
*/
package deps
