// main is the entry point of the hyquery responder.
// It answers HYQUERY requests on the game port, relays all other traffic to the
// game server and optionally registers the server with hytale.one.
package main

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hytaleone/hyquery/internal/config"
	"github.com/hytaleone/hyquery/internal/fake"
	"github.com/hytaleone/hyquery/internal/logger"
	"github.com/hytaleone/hyquery/internal/maintenance"
	"github.com/hytaleone/hyquery/internal/models"
	"github.com/hytaleone/hyquery/internal/query"
	"github.com/hytaleone/hyquery/internal/register"
	"github.com/hytaleone/hyquery/internal/server"
	"github.com/hytaleone/hyquery/internal/status"
	"github.com/hytaleone/hyquery/internal/storage"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Parse()

	closeLog := logger.Setup(cfg.Logger)
	defer closeLog()

	// Probe mode needs neither the database nor the socket
	if cfg.Probe.Address != "" {
		code := probe(cfg.Probe)
		closeLog()
		os.Exit(code)
	}

	log.Info().Msg("Starting hyquery...")

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Server state
	snapshots := status.New(baseSnapshot(cfg.Status))
	if cfg.Status.File != "" {
		if err := snapshots.Load(cfg.Status.File); err != nil {
			log.Warn().Err(err).Str("path", cfg.Status.File).Msg("Failed to load status file, serving static status")
		}
	}

	srv, err := server.New(cfg.Server, cfg.Query, snapshots)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	resolve := func() (*net.UDPAddr, error) {
		if addr, err := srv.PublicAddr(); err == nil {
			return addr, nil
		}
		local, err := net.ResolveUDPAddr("udp", cfg.Server.Address)
		if err != nil {
			return nil, err
		}
		return server.NonLoopback(local)
	}
	registrar := register.New(store, snapshots,
		register.WithEndpoint(cfg.Register.Endpoint),
		register.WithTimeout(cfg.Register.Timeout),
		register.WithHistory(store),
		register.WithAddrResolver(resolve),
	)

	if maintenance.Run(cfg, store, registrar) {
		return
	}

	if err := srv.Listen(); err != nil {
		log.Fatal().Err(err).Str("address", cfg.Server.Address).Msg("Failed to listen")
	}
	if addr, err := srv.PublicAddr(); err == nil {
		snapshots.SetHostPort(uint16(addr.Port))
	} else {
		log.Debug().Err(err).Msg("No public address, advertising default port")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Status.File != "" {
		go snapshots.Watch(ctx, cfg.Status.File, cfg.Status.Interval)
	}

	srv.Start()

	// Registration
	registrar.Start(&register.Config{
		ServerID:     cfg.Register.ServerID,
		AutoRegister: cfg.Register.OnStartup,
	})

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	cancel()

	if err := srv.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing socket")
	}

	// Wait for an in-flight registration, bounded by its timeout
	registrar.Wait()

	log.Info().Msg("hyquery exited")
}

// baseSnapshot builds the static part of the served state from flags.
func baseSnapshot(cfg config.Status) models.Snapshot {
	snap := models.Snapshot{
		ServerName:      cfg.Name,
		MOTD:            cfg.MOTD,
		MaxPlayers:      uint32(max(cfg.MaxPlayers, 0)),
		HostPort:        models.DefaultPort,
		Version:         cfg.Version,
		ProtocolVersion: cfg.ProtocolVersion,
		ProtocolHash:    cfg.ProtocolHash,
	}

	if cfg.FakePlayers > 0 {
		snap = fake.Populate(snap, cfg.FakePlayers)
	}

	return snap
}

// probe queries a remote responder and prints the decoded reply.
func probe(cfg config.Probe) int {
	t := query.TypeBasic
	if cfg.Full {
		t = query.TypeFull
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	resp, err := query.Do(ctx, cfg.Address, t)
	if err != nil {
		log.Error().Err(err).Str("address", cfg.Address).Msg("Probe failed")
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to print response")
		return 1
	}
	return 0
}
