// Package observerproto holds the wire types of the read-only observer feed.
package observerproto

import "simbridge.ai/internal/protocol"

// Version is the observer protocol version (separate from the command WS protocol).
const Version = "0.1"

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	// Tick of the latest broadcast, 0 before the first one.
	Tick     int                `json:"tick"`
	Watchers int                `json:"watchers"`
	State    *protocol.Snapshot `json:"state,omitempty"`
}

// Server -> Client. First frame on the observer WS connection.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WatcherID       string `json:"watcher_id"`
}

func NewHello(id string) HelloMsg {
	return HelloMsg{Type: "hello", ProtocolVersion: Version, WatcherID: id}
}
