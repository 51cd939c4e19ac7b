/*
Package ibgib defines the content-addressed node every other package stores,
relates and reconciles.

A node is identified by its address, "id^contentHash". The content hash is
derived from the node's id, data and relations, so any change yields a new
address. Nodes whose content hash is the "gib" sentinel are primitives: they
are never hashed nor persisted.

Timelines are chains of nodes linked through the "past" relation. The first
node of a chain, or the node flagged with "isTjp", is the temporal junction
point (tjp) and its address identifies the whole timeline.
*/
package ibgib
