// Package broadcast publishes entity events to the project or user audience they concern.
//
// Every publish encodes its frame and hands it to a domain.GroupSender on its own goroutine,
// returning a Delivery immediately. There is no retry and no buffering: an audience with no
// connections is a successful no-op, and a transport failure surfaces unchanged through
// Delivery.Err for callers that choose to look.
package broadcast
