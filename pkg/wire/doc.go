// Package wire defines the vocabulary shared by the live update server and its clients.
//
// A frame is a JSON object {"target": <event name>, "arguments": [...]} with positional
// arguments. Entity kinds are routed by a stable string key taken from an explicit registry,
// never from Go type names, so renaming a struct cannot change what clients subscribe to.
package wire
