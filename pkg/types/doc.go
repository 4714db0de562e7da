// Package types defines the entities, envelope metadata, store interfaces and
// standard errors shared by the stride store, lifecycle and sync packages.
//
// Every syncable entity embeds an Envelope. The envelope carries the local
// primary key, the immutable UUID used as the remote conflict key, and the
// dirty and tombstone markers the sync engine drains.
package types
