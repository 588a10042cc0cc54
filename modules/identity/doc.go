// Package identity tracks which durable account sits behind each room-scoped
// occupant handle. Presence events from drivers are translated into index
// mutations, and the index answers `/whois` lookups and the `~identities`
// diagnostic dump.
package identity
