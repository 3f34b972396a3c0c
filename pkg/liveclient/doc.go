// Package liveclient connects to the live update endpoint and routes entity events to
// per-entity handlers.
//
// A Builder performs the handshake and returns a Conn once the server has confirmed it.
// Handlers are registered on the connection's Subscriptions with OnValueUpdated, OnChanged,
// OnEditStarted and OnEditEnded; each fires only for frames whose entity kind and entity id
// both match. Delivery is best effort: handlers must tolerate duplicate and out-of-order
// events and should refetch state on reconnect.
package liveclient
