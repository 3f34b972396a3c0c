// Package domain defines the core types and contracts of the live update service.
//
// Group naming, identity and membership live here together with the interfaces the
// gateway and the broadcast service consume. No implementation code, just contracts,
// so adapters and services can depend on it without importing each other.
package domain
