// Package server implements the LAN chat hub: a single shared room where
// every joined WebSocket client receives presence, typing and chat events.
//
// The Hub serializes all client events on one goroutine. The Session turns
// transport signals into Router calls, the Router shapes and broadcasts
// events, and presence.Registry holds who is connected.
package server
