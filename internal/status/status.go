// Package status keeps the server snapshot served by the query responder.
//
// The snapshot is replaced atomically, so readers on the socket goroutine never
// observe a partial update. The host writes player and component lists to a
// JSON status file which the Store reloads when it changes.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/hytaleone/hyquery/internal/models"
	"github.com/rs/zerolog/log"
)

// File is the JSON document written by the host. Empty fields keep the values
// configured on the command line.
type File struct {
	ServerName     string             `json:"serverName"`
	MOTD           string             `json:"motd"`
	MaxPlayers     *int64             `json:"maxPlayers"`
	CurrentPlayers *uint32            `json:"currentPlayers"`
	Players        []models.Player    `json:"players"`
	Components     []models.Component `json:"components"`
}

// Store holds the current snapshot.
type Store struct {
	base    models.Snapshot
	current atomic.Pointer[models.Snapshot]
	modTime time.Time
}

// New creates a Store serving base until the first status file is applied.
func New(base models.Snapshot) *Store {
	s := &Store{base: base.Clone()}
	s.Set(base)
	return s
}

// Snapshot returns the current snapshot. Its slices are shared with the Store
// and must not be modified.
func (s *Store) Snapshot() models.Snapshot {
	return *s.current.Load()
}

// Set replaces the current snapshot. snap is copied, so the caller may keep
// modifying it.
func (s *Store) Set(snap models.Snapshot) {
	cp := snap.Clone()
	s.current.Store(&cp)
}

// SetHostPort updates the advertised port on both the base and the current snapshot.
// It must be called before Watch is started.
func (s *Store) SetHostPort(port uint16) {
	s.base.HostPort = port
	snap := s.Snapshot()
	snap.HostPort = port
	s.Set(snap)
}

// Apply merges f over the base snapshot and publishes the result.
func (s *Store) Apply(f File) {
	snap := s.base.Clone()

	if f.ServerName != "" {
		snap.ServerName = f.ServerName
	}
	if f.MOTD != "" {
		snap.MOTD = f.MOTD
	}
	if f.MaxPlayers != nil {
		snap.MaxPlayers = clampMaxPlayers(*f.MaxPlayers)
	}

	snap.Players = f.Players
	snap.Components = f.Components

	switch {
	case f.CurrentPlayers != nil:
		snap.CurrentPlayers = *f.CurrentPlayers
	default:
		snap.CurrentPlayers = uint32(len(f.Players))
	}

	s.Set(snap)
}

// Load reads the status file at path and applies it.
func (s *Store) Load(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f File
	if err := json.Unmarshal(content, &f); err != nil {
		return fmt.Errorf("decode status file %s: %w", path, err)
	}

	s.Apply(f)
	return nil
}

// Watch reloads path whenever its modification time changes, until ctx is done.
func (s *Store) Watch(ctx context.Context, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.reload(path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reload(path)
		}
	}
}

func (s *Store) reload(path string) {
	info, err := os.Stat(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Status file unavailable")
		return
	}
	if info.ModTime().Equal(s.modTime) {
		return
	}

	if err := s.Load(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to load status file")
		return
	}
	s.modTime = info.ModTime()

	snap := s.Snapshot()
	log.Debug().
		Str("path", path).
		Int("players", len(snap.Players)).
		Int("components", len(snap.Components)).
		Msg("Status file reloaded")
}

// clampMaxPlayers maps negative capacities reported by the host to zero.
func clampMaxPlayers(v int64) uint32 {
	switch {
	case v < 0:
		return 0
	case v > int64(^uint32(0)):
		return ^uint32(0)
	}
	return uint32(v)
}
