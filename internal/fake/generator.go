// Package fake generates random players and components for load testing the full query response.
package fake

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/hytaleone/hyquery/internal/models"
)

var (
	prefixes = []string{"Kweebec", "Trork", "Feran", "Outlander", "Scarak", "Klops", "Hytalian"}
	vendors  = []string{"HytaleOne", "Acme", "Orbis", "Zone", "Adventure"}
	modules  = []string{"Query", "Chat", "Economy", "Teleport", "Claims", "Kits", "Backup"}
)

// Players returns count players with unique names and random identifiers.
func Players(count int) []models.Player {
	players := make([]models.Player, 0, count)
	for i := 0; i < count; i++ {
		players = append(players, models.Player{
			Username: fmt.Sprintf("%s%d", prefixes[rand.Intn(len(prefixes))], i),
			ID:       uuid.New(),
		})
	}
	return players
}

// Components returns count components, roughly one in ten disabled.
func Components(count int) []models.Component {
	components := make([]models.Component, 0, count)
	for i := 0; i < count; i++ {
		components = append(components, models.Component{
			Identifier: fmt.Sprintf("%s:%s%d", vendors[rand.Intn(len(vendors))], modules[rand.Intn(len(modules))], i),
			Version:    fmt.Sprintf("%d.%d.%d", rand.Intn(3), rand.Intn(10), rand.Intn(20)),
			Enabled:    rand.Float32() >= 0.1,
		})
	}
	return components
}

// Populate fills snap with count players and count/4 components.
func Populate(snap models.Snapshot, count int) models.Snapshot {
	snap.Players = Players(count)
	snap.Components = Components(count / 4)
	snap.CurrentPlayers = uint32(count)
	return snap
}
