// Package redis holds the Redis-backed parts of the service: the bearer token store used
// to resolve identities, and the relay that fans group frames out across instances.
//
// Every client built by NewClient carries a metrics hook and a circuit breaker hook, so
// a Redis outage fails handshakes and publishes fast instead of piling up timeouts.
package redis
