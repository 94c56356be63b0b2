package status

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/hytaleone/hyquery/internal/models"
)

func base() models.Snapshot {
	return models.Snapshot{
		ServerName:      "Orbis",
		MOTD:            "hello",
		MaxPlayers:      50,
		HostPort:        5520,
		Version:         "dev",
		ProtocolVersion: 3,
	}
}

func TestSetCopiesInput(t *testing.T) {
	players := []models.Player{{Username: "a", ID: uuid.New()}}
	s := New(base())
	s.Apply(File{Players: players})

	players[0].Username = "mutated"

	if got := s.Snapshot().Players[0].Username; got != "a" {
		t.Fatalf("store snapshot mutated through input slice: %q", got)
	}
}

func TestSnapshotDoesNotAllocate(t *testing.T) {
	s := New(base())
	s.Apply(File{Players: []models.Player{{Username: "a", ID: uuid.New()}}})

	allocs := testing.AllocsPerRun(100, func() {
		_ = s.Snapshot()
	})
	if allocs != 0 {
		t.Fatalf("Snapshot allocated %.0f times per call", allocs)
	}
}

func TestApply(t *testing.T) {
	s := New(base())
	negative := int64(-5)
	s.Apply(File{
		MOTD:       "maintenance tonight",
		MaxPlayers: &negative,
		Players: []models.Player{
			{Username: "a", ID: uuid.New()},
			{Username: "b", ID: uuid.New()},
		},
	})

	snap := s.Snapshot()
	if snap.ServerName != "Orbis" || snap.MOTD != "maintenance tonight" {
		t.Fatalf("unexpected name/motd %q/%q", snap.ServerName, snap.MOTD)
	}
	if snap.MaxPlayers != 0 {
		t.Fatalf("max players = %d, want clamp to 0", snap.MaxPlayers)
	}
	if snap.CurrentPlayers != 2 {
		t.Fatalf("current players = %d, want len(players)", snap.CurrentPlayers)
	}

	count := uint32(7)
	s.Apply(File{CurrentPlayers: &count})
	snap = s.Snapshot()
	if snap.CurrentPlayers != 7 || snap.MOTD != "hello" || len(snap.Players) != 0 {
		t.Fatalf("second apply did not start from base: %+v", snap)
	}
}

func TestLoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	doc := `{"serverName":"From File","players":[{"username":"kweebec","id":"00112233-4455-6677-8899-aabbccddeeff"}],
		"components":[{"identifier":"HytaleOne:Query","version":"1.0.0","enabled":true}]}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write status file: %v", err)
	}

	s := New(base())
	s.reload(path)

	snap := s.Snapshot()
	if snap.ServerName != "From File" || len(snap.Players) != 1 || len(snap.Components) != 1 {
		t.Fatalf("status file not applied: %+v", snap)
	}
	if snap.Players[0].ID != uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff") {
		t.Fatalf("player id = %v", snap.Players[0].ID)
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write status file: %v", err)
	}
	if err := s.Load(path); err == nil {
		t.Fatalf("expected decode error")
	}
	if s.Snapshot().ServerName != "From File" {
		t.Fatalf("failed load replaced the snapshot")
	}
}

func TestSetHostPort(t *testing.T) {
	s := New(base())
	s.SetHostPort(25565)
	s.Apply(File{})
	if got := s.Snapshot().HostPort; got != 25565 {
		t.Fatalf("host port = %d, want 25565", got)
	}
}
