// Package gateway accepts websocket connections, runs the handshake that decides whether a
// connection may listen to a project, and places admitted connections into their delivery
// groups.
//
// A connection moves through Connecting, Authenticated, Authorized and Joined, and ends in
// Disconnected, or in Aborted if the handshake rejects it. A rejected connection receives
// exactly one HandleConnectionError frame and is closed without joining any group. A joined
// connection leaves exactly the groups recorded on it when it disconnects.
package gateway
