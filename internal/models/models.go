// Package models defines the data structures shared by the query responder,
// the status provider, the registration workflow and the storage layer.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPort is reported when the bound non-loopback address cannot be resolved.
const DefaultPort = 5520

// Snapshot is a point-in-time view of the server state used to build one query response.
// A Snapshot must not be mutated once handed to the response builder.
type Snapshot struct {
	ServerName      string      `json:"serverName"`
	MOTD            string      `json:"motd"`
	Version         string      `json:"version"`
	ProtocolHash    string      `json:"protocolHash"`
	Players         []Player    `json:"players,omitempty"`
	Components      []Component `json:"components,omitempty"`
	CurrentPlayers  uint32      `json:"currentPlayers"`
	MaxPlayers      uint32      `json:"maxPlayers"`
	ProtocolVersion uint32      `json:"protocolVersion"`
	HostPort        uint16      `json:"hostPort"`
}

// Player is an online player as listed in the full query response.
type Player struct {
	Username string    `json:"username"`
	ID       uuid.UUID `json:"id"`
}

// Component is an installed add-on as listed in the full query response.
type Component struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	Enabled    bool   `json:"enabled"`
}

// Clone returns a deep copy so cached snapshots stay immutable.
func (s Snapshot) Clone() Snapshot {
	cp := s
	if s.Players != nil {
		cp.Players = append([]Player(nil), s.Players...)
	}
	if s.Components != nil {
		cp.Components = append([]Component(nil), s.Components...)
	}
	return cp
}

// RegistrationRequest is the JSON body announced to the directory service.
type RegistrationRequest struct {
	ServerID        string  `json:"serverId"`
	ServerName      string  `json:"serverName"`
	MOTD            string  `json:"motd"`
	Host            *string `json:"host"`
	Version         string  `json:"version"`
	Port            int     `json:"port"`
	MaxPlayers      uint32  `json:"maxPlayers"`
	CurrentPlayers  uint32  `json:"currentPlayers"`
	ProtocolVersion uint32  `json:"protocolVersion"`
}

// RegistrationResponse is the optional success body returned by the directory service.
type RegistrationResponse struct {
	URL     string `json:"url"`
	Claimed bool   `json:"claimed"`
}

// Registration is one completed registration attempt as recorded in the history table.
type Registration struct {
	AttemptedAt time.Time `json:"attempted_at"`
	ServerID    string    `json:"server_id"`
	Outcome     string    `json:"outcome"`
	URL         string    `json:"url,omitempty"`
	Error       string    `json:"error,omitempty"`
	StatusCode  int       `json:"status_code"`
}
