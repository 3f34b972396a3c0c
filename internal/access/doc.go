// Package access decorates a MembershipResolver with a short-lived in-memory cache.
//
// A burst of handshakes for one project, typically after a deploy, would otherwise hit the
// membership store once per connection. Concurrent lookups for the same (project, user) pair
// share one resolver call and positive answers are kept for a TTL. Negative answers and
// errors are never cached, so granting a role takes effect on the next handshake.
package access
