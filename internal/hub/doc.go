// Package hub keeps track of which connections belong to which delivery group and fans
// frames out to them.
//
// Groups and their connection counters live in sharded concurrent maps. Membership changes
// for one group are applied under that group's shard lock, so a join can never race with the
// removal of the same group when it becomes empty, while unrelated groups never contend.
// Every connection owns one Writer goroutine, the only goroutine allowed to write to its socket.
package hub
