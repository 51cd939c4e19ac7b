/*
Package gibsync provides tooling to store and synchronize ibGib nodes.

Nodes are immutable and content-addressed. They are held in spaces: in memory,
on a local file system, in an embedded badger database, in a DynamoDB table, or
in a composition of those. A registry keeps track of the latest version of each
timeline and notifies subscribers of changes.

The packages of interest are pkg/space and its backends, pkg/latest and pkg/bus.
The gibsync command line in cmd/gibsync exposes them.
*/
package gibsync
